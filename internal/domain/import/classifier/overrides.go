package classifier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

// ErrOverride marks a malformed per-import settings text.
var ErrOverride = errors.New("invalid import override")

// Override is one user-supplied field assignment applied after special conditions.
type Override struct {
	Field  patterns.Field
	Value  string
	Append bool
}

var overridable = map[patterns.Field]bool{
	patterns.FieldCounterparty:     true,
	patterns.FieldCheckNum:         true,
	patterns.FieldDescription:      true,
	patterns.FieldCashSource:       true,
	patterns.FieldTransactionClass: true,
}

// ParseOverrides reads the free-text import settings, one "field: value" per line.
// "field+: value" appends to the field instead of replacing it. Blank lines and
// lines starting with # are ignored.
func ParseOverrides(text string) ([]Override, error) {
	var out []Override
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: expected \"field: value\"", ErrOverride, n+1)
		}
		name = strings.TrimSpace(name)
		ov := Override{Value: strings.TrimSpace(value)}
		if strings.HasSuffix(name, "+") {
			ov.Append = true
			name = strings.TrimSuffix(name, "+")
		}
		field, ok := patterns.ParseField(name)
		if !ok || !overridable[field] {
			return nil, fmt.Errorf("%w: line %d: field %q cannot be overridden", ErrOverride, n+1, name)
		}
		ov.Field = field
		out = append(out, ov)
	}
	return out, nil
}
