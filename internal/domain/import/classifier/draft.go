package classifier

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

// draft is the in-progress transaction that special conditions and overrides
// read and write, field by field, as text.
type draft map[patterns.Field]string

func newDraft(rec normalizer.Record, layout *patterns.TypeLayout) draft {
	d := draft{
		patterns.FieldAmount:           strings.TrimSpace(rec.RawAmount),
		patterns.FieldDescription:      strings.Join(strings.Fields(rec.Description), " "),
		patterns.FieldCashSource:       layout.DefaultCashSource,
		patterns.FieldTransactionClass: layout.DefaultTransactionClass,
		patterns.FieldTransactionType:  patterns.DefaultTransactionType,
	}
	if d[patterns.FieldCashSource] == "" {
		d[patterns.FieldCashSource] = strings.TrimSpace(rec.CardRef)
	}
	return d
}

func (d draft) get(f patterns.Field) string { return d[f] }

func (d draft) set(f patterns.Field, v string) { d[f] = v }

func (d draft) optional(f patterns.Field) *string {
	v, ok := d[f]
	if !ok || v == "" {
		return nil
	}
	return &v
}

// applyConditions runs every matching condition in declaration order. Later
// actions overwrite fields written by earlier ones.
func (d draft) applyConditions(conds []patterns.Condition, currency string) error {
	for _, cond := range conds {
		if !cond.Trigger.MatchString(strings.ToUpper(d.get(patterns.FieldDescription))) {
			continue
		}
		for _, a := range cond.Actions {
			if err := d.apply(a, currency); err != nil {
				return fmt.Errorf("condition %q: %w", cond.Trigger.String(), err)
			}
		}
	}
	return nil
}

func (d draft) apply(a patterns.Action, currency string) error {
	switch a.Value.Kind {
	case patterns.ExprSelfAmount:
		d.set(a.Field, d.get(patterns.FieldAmount))
	case patterns.ExprNegatedAmount:
		amount, err := ParseAmount(d.get(patterns.FieldAmount), currency)
		if err != nil {
			return fmt.Errorf("negate amount: %w", err)
		}
		d.set(a.Field, FormatAmount(amount.Neg(), currency))
	case patterns.ExprCurrentValue:
		d.set(a.Field, joinNonEmpty(d.get(a.Field), a.Comment))
	default:
		d.set(a.Field, a.Value.Text)
	}
	return nil
}

func (d draft) applyOverrides(overrides []Override) {
	for _, ov := range overrides {
		if ov.Append {
			d.set(ov.Field, joinNonEmpty(d.get(ov.Field), ov.Value))
			continue
		}
		d.set(ov.Field, ov.Value)
	}
}

func joinNonEmpty(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}
