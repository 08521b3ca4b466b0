package classifier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var errEmptyAmount = errors.New("empty amount")

// errPrecision rejects amounts the store would have to round: both stores keep
// exactly two decimal places.
var errPrecision = errors.New("amount has more than two decimal places")

var dashes = strings.NewReplacer("−", "-", "–", "-", "—", "-")

// ParseAmount strips currency decoration and grouping from a statement amount.
// Both "1 234,56 ₽" and "-1,234.56" are accepted; a lone comma followed by at
// most two digits is a decimal separator. Amounts finer than kopecks are
// rejected rather than rounded.
func ParseAmount(raw, currency string) (decimal.Decimal, error) {
	s := raw
	if currency != "" {
		s = strings.ReplaceAll(s, currency, "")
	}
	s = dashes.Replace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-', r == '+':
			return r
		}
		return -1
	}, s)

	neg := false
	for {
		s = strings.Trim(s, ".,")
		switch {
		case strings.HasPrefix(s, "-"):
			neg = !neg
			s = s[1:]
			continue
		case strings.HasPrefix(s, "+"):
			s = s[1:]
			continue
		case strings.HasSuffix(s, "-"):
			neg = !neg
			s = s[:len(s)-1]
			continue
		}
		break
	}
	if s == "" {
		return decimal.Zero, errEmptyAmount
	}

	d, err := decimal.NewFromString(normalizeSeparators(s))
	if err != nil {
		return decimal.Zero, err
	}
	if !d.Round(2).Equal(d) {
		return decimal.Zero, fmt.Errorf("%w: %q", errPrecision, raw)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

func normalizeSeparators(s string) string {
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-comma-1 <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// FormatAmount renders an amount the way special conditions write it back: plain
// digits, a leading minus for negatives and the currency as a suffix. Layouts
// always carry a currency (loading defaults it to ₽), so the bare form only
// shows up for hand-built layouts in tests.
func FormatAmount(d decimal.Decimal, currency string) string {
	if currency == "" {
		return d.String()
	}
	return d.String() + " " + currency
}
