// Package money wraps go-money for the amounts that come out of bank
// statements. Statement amounts are decimals tagged with whatever currency
// marker the layout uses ("₽", "руб.", "RUB"); this package maps those markers
// to ISO-4217 codes and keeps arithmetic in integer minor units.
package money

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	RUB = "RUB"
	USD = "USD"
	EUR = "EUR"
	CNY = "CNY"
	KZT = "KZT"
)

// ErrCurrencyMismatch is returned when combining amounts in different currencies.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// markers maps statement currency markers to ISO codes. Keys are lower case.
var markers = map[string]string{
	"₽":    RUB,
	"р.":   RUB,
	"р":    RUB,
	"руб":  RUB,
	"руб.": RUB,
	"rur":  RUB,
	"$":    USD,
	"€":    EUR,
	"¥":    CNY,
	"₸":    KZT,
}

// Code resolves a statement currency marker to an ISO code. Unknown markers
// that are not ISO codes themselves fall back to RUB, the currency every
// supported layout reports in.
func Code(marker string) string {
	m := strings.ToLower(strings.TrimSpace(marker))
	if m == "" {
		return RUB
	}
	if code, ok := markers[m]; ok {
		return code
	}
	if c := money.GetCurrency(strings.ToUpper(m)); c != nil {
		return c.Code
	}
	return RUB
}

// Money is an amount in minor units with its currency.
type Money struct {
	m *money.Money
}

// New creates Money from minor units.
func New(minor int64, currency string) *Money {
	return &Money{m: money.New(minor, Code(currency))}
}

// FromDecimal converts a statement amount. Values finer than the currency's
// minor unit are rounded half away from zero.
func FromDecimal(d decimal.Decimal, currency string) *Money {
	code := Code(currency)
	fraction := money.GetCurrency(code).Fraction
	minor := d.Shift(int32(fraction)).Round(0).IntPart()
	return &Money{m: money.New(minor, code)}
}

// Zero returns a zero amount in currency.
func Zero(currency string) *Money {
	return New(0, currency)
}

// Amount returns minor units.
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO code.
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

// Abs returns the absolute value.
func (m *Money) Abs() *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return &Money{m: m.m.Absolute()}
}

// Add sums two amounts of the same currency. A nil operand is treated as zero.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}
	if m.Currency() != other.Currency() {
		return nil, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency(), other.Currency())
	}
	sum, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: sum}, nil
}

// Decimal converts back to a decimal in major units.
func (m *Money) Decimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	return decimal.New(m.m.Amount(), -int32(m.m.Currency().Fraction))
}

// String returns the amount with exactly the currency's minor digits, e.g. "-1234.50".
func (m *Money) String() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.Decimal().StringFixed(int32(m.m.Currency().Fraction))
}

// Display returns a grouped amount with the currency grapheme.
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}

// Totals accumulates amounts per currency.
type Totals map[string]*Money

// Add adds d in currency to the running total.
func (t Totals) Add(d decimal.Decimal, currency string) {
	v := FromDecimal(d, currency)
	sum, _ := t[v.Currency()].Add(v)
	t[v.Currency()] = sum
}

// Codes returns the currencies present, sorted.
func (t Totals) Codes() []string {
	codes := make([]string, 0, len(t))
	for c := range t {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
