package patterns

import (
	"strings"
)

// Field names a writable transaction field.
type Field string

const (
	FieldAmount           Field = "amount"
	FieldTargetAmount     Field = "target_amount"
	FieldCashSource       Field = "cash_source"
	FieldTargetCashSource Field = "target_cash_source"
	FieldCategory         Field = "category"
	FieldDescription      Field = "description"
	FieldCounterparty     Field = "counterparty"
	FieldCheckNum         Field = "check_num"
	FieldTransactionType  Field = "transaction_type"
	FieldTransactionClass Field = "transaction_class"
)

// fieldAliases maps statement column titles used in rule files to canonical fields.
var fieldAliases = map[string]Field{
	"сумма":          FieldAmount,
	"сумма (куда)":   FieldTargetAmount,
	"счет":           FieldCashSource,
	"счёт":           FieldCashSource,
	"счет (куда)":    FieldTargetCashSource,
	"счёт (куда)":    FieldTargetCashSource,
	"категория":      FieldCategory,
	"описание":       FieldDescription,
	"контрагент":     FieldCounterparty,
	"чек #":          FieldCheckNum,
	"тип транзакции": FieldTransactionType,
	"класс":          FieldTransactionClass,
}

var canonicalFields = map[Field]struct{}{
	FieldAmount:           {},
	FieldTargetAmount:     {},
	FieldCashSource:       {},
	FieldTargetCashSource: {},
	FieldCategory:         {},
	FieldDescription:      {},
	FieldCounterparty:     {},
	FieldCheckNum:         {},
	FieldTransactionType:  {},
	FieldTransactionClass: {},
}

// ParseField resolves a canonical name or a column alias, case-insensitively.
func ParseField(name string) (Field, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if f, ok := fieldAliases[key]; ok {
		return f, true
	}
	f := Field(key)
	if _, ok := canonicalFields[f]; ok {
		return f, true
	}
	return "", false
}

// IsAmount reports whether the field carries a currency-decorated amount.
func (f Field) IsAmount() bool {
	return f == FieldAmount || f == FieldTargetAmount
}
