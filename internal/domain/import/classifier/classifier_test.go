package classifier

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

const exampleConfig = "../../../../configs/patterns.example.yaml"

func setup(t *testing.T) (*Classifier, *patterns.TypeLayout) {
	t.Helper()
	cfg, err := patterns.Load(exampleConfig)
	require.NoError(t, err)
	layout, ok := cfg.Type("tbank_card")
	require.True(t, ok)
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))), layout
}

func record(desc, amount string) normalizer.Record {
	return normalizer.Record{DateText: "01.02.2024", TimeText: "12:30", RawAmount: amount, Description: desc}
}

func TestClassify_Categories(t *testing.T) {
	c, layout := setup(t)

	tests := []struct {
		desc     string
		category string
	}{
		{"ПРОДУКТЫ МАГНИТ", "Еда"},
		{"продукты магнит", "Еда"},
		{"YANDEX*GO TRIP", "Транспорт"},
		{"yandexgo", "Транспорт"},
		{"ВКУСНО И ТОЧКА 123", "Кафе и рестораны"},
		{"ПЕРЕВОД ПО НОМЕРУ ТЕЛЕФОНА", "Переводы"},
		{"ОПЛАТА В ЗООМАГАЗИНЕ", patterns.OtherCategory},
		{"", patterns.OtherCategory},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.category, c.Category(tt.desc))
		})
	}

	res := c.Classify([]normalizer.Record{record("ПРОДУКТЫ МАГНИТ", "-500.00 ₽")}, layout, nil)
	require.Len(t, res.Transactions, 1)
	tx := res.Transactions[0]
	assert.Equal(t, "Еда", tx.Category)
	assert.Equal(t, time.Date(2024, 2, 1, 12, 30, 0, 0, time.UTC), tx.TransactionDate)
	assert.True(t, decimal.RequireFromString("-500").Equal(tx.Amount))
	assert.Equal(t, "expense", tx.TransactionType)
	assert.Equal(t, "Тинькофф Black", tx.CashSource)
	assert.Equal(t, "личное", tx.TransactionClass)
	assert.Equal(t, "tbank_card", tx.PDFType)
	assert.Nil(t, tx.TargetAmount)
	assert.Nil(t, tx.TargetCashSource)
}

func TestClassify_SpecialConditions(t *testing.T) {
	c, layout := setup(t)

	t.Run("transfer negates the amount into the target", func(t *testing.T) {
		res := c.Classify([]normalizer.Record{record("ПЕРЕВОД МЕЖДУ СВОИМИ СЧЕТАМИ", "1 000 ₽")}, layout, nil)
		require.Len(t, res.Transactions, 1)
		tx := res.Transactions[0]
		require.NotNil(t, tx.TargetAmount)
		assert.Equal(t, "-1000 ₽", *tx.TargetAmount)
		require.NotNil(t, tx.TargetCashSource)
		assert.Equal(t, "Накопительный счёт", *tx.TargetCashSource)
		assert.Equal(t, "transfer", tx.TransactionType)
		assert.Equal(t, "Переводы", tx.Category)
		assert.True(t, decimal.NewFromInt(1000).Equal(tx.Amount))
	})

	t.Run("cashback overrides the category", func(t *testing.T) {
		res := c.Classify([]normalizer.Record{record("КЭШБЭК ЗА ПОКУПКИ В МАГНИТ", "+35,50 ₽")}, layout, nil)
		tx := res.Transactions[0]
		assert.Equal(t, "Кэшбэк", tx.Category)
		assert.Equal(t, "income", tx.TransactionType)
		assert.True(t, decimal.RequireFromString("35.5").Equal(tx.Amount))
	})

	t.Run("current value keeps the field and appends the comment", func(t *testing.T) {
		res := c.Classify([]normalizer.Record{record("ВОЗВРАТ МАГНИТ", "+120 ₽")}, layout, nil)
		tx := res.Transactions[0]
		assert.Equal(t, "ВОЗВРАТ МАГНИТ (возврат)", tx.Description)
		assert.Equal(t, "Еда", tx.Category)
		assert.Equal(t, "income", tx.TransactionType)
	})

	t.Run("self copies the amount", func(t *testing.T) {
		res := c.Classify([]normalizer.Record{record("КОМИССИЯ ЗА ОБСЛУЖИВАНИЕ", "-99 ₽")}, layout, nil)
		tx := res.Transactions[0]
		require.NotNil(t, tx.TargetAmount)
		assert.Equal(t, "-99 ₽", *tx.TargetAmount)
		assert.Equal(t, "Банк", tx.Counterparty)
		assert.Equal(t, patterns.OtherCategory, tx.Category)
	})
}

func TestClassify_LaterConditionsOverwrite(t *testing.T) {
	cfg, err := patterns.Parse([]byte(`
pdf_types:
  x:
    family: stream
    detect: [X]
    stream: {amount_offset: 0, description_offsets: [1]}
special_conditions:
  - trigger: 'АПТЕКА'
    actions:
      - {field: category, value: Здоровье}
      - {field: amount, value: '-$CURRENT'}
  - trigger: 'АПТЕКА НА ДОМ'
    actions:
      - {field: category, value: Доставка}
      - {field: transaction_class, value: '$CURRENT', comment: 'семья'}
`))
	require.NoError(t, err)
	c := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	layout, _ := cfg.Type("x")

	res := c.Classify([]normalizer.Record{
		record("АПТЕКА НА ДОМ", "250 ₽"),
		record("АПТЕКА 36,6", "100 ₽"),
	}, layout, nil)
	require.Len(t, res.Transactions, 2)

	assert.Equal(t, "Доставка", res.Transactions[0].Category)
	assert.Equal(t, "семья", res.Transactions[0].TransactionClass)
	assert.True(t, decimal.NewFromInt(-250).Equal(res.Transactions[0].Amount))

	assert.Equal(t, "Здоровье", res.Transactions[1].Category)
	assert.True(t, decimal.NewFromInt(-100).Equal(res.Transactions[1].Amount))
}

func TestClassify_Overrides(t *testing.T) {
	c, layout := setup(t)

	overrides, err := ParseOverrides(`
# settings for this statement
counterparty: ИП Иванов
description+: (командировка)
Класс: рабочее
Счет: Корпоративная карта
`)
	require.NoError(t, err)
	require.Len(t, overrides, 4)

	res := c.Classify([]normalizer.Record{record("КОМИССИЯ ЗА ПЕРЕВОД", "-50 ₽")}, layout, overrides)
	tx := res.Transactions[0]
	assert.Equal(t, "ИП Иванов", tx.Counterparty, "override beats the special condition")
	assert.Equal(t, "КОМИССИЯ ЗА ПЕРЕВОД (командировка)", tx.Description)
	assert.Equal(t, "рабочее", tx.TransactionClass)
	assert.Equal(t, "Корпоративная карта", tx.CashSource)
}

func TestParseOverrides_Errors(t *testing.T) {
	for _, text := range []string{
		"category: Еда",
		"amount: 5",
		"Сумма (куда): 5",
		"just a note",
		"unknown_field: x",
	} {
		t.Run(text, func(t *testing.T) {
			_, err := ParseOverrides(text)
			assert.ErrorIs(t, err, ErrOverride)
		})
	}

	got, err := ParseOverrides("  \n")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClassify_DropsUnparseableRows(t *testing.T) {
	c, layout := setup(t)

	records := []normalizer.Record{
		record("МАГНИТ", "-1 ₽"),
		{DateText: "32.13.2024", TimeText: "10:00", RawAmount: "-1 ₽", Description: "bad date", Line: 7},
		{DateText: "01.02.2024", RawAmount: "—", Description: "no amount", Line: 9},
		{DateText: "02.02.2024", RawAmount: "-3 ₽", Description: "no time"},
	}
	res := c.Classify(records, layout, nil)

	require.Len(t, res.Transactions, 2)
	assert.Equal(t, 2, res.Dropped)
	require.Len(t, res.Errors, 2)
	assert.ErrorIs(t, res.Errors[0], ErrParse)
	assert.Equal(t, "date", res.Errors[0].Field)
	assert.Equal(t, 7, res.Errors[0].Line)
	assert.Equal(t, "amount", res.Errors[1].Field)

	assert.Equal(t, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), res.Transactions[1].TransactionDate)
	for _, tx := range res.Transactions {
		assert.False(t, tx.TransactionDate.IsZero())
	}
}

func TestClassify_InvertSignAndLocation(t *testing.T) {
	c, layout := setup(t)
	inverted := *layout
	inverted.InvertSign = true

	c.WithLocation(time.FixedZone("MSK", 3*60*60))

	res := c.Classify([]normalizer.Record{record("МАГНИТ", "500 ₽")}, &inverted, nil)
	require.Len(t, res.Transactions, 1)
	assert.True(t, decimal.NewFromInt(-500).Equal(res.Transactions[0].Amount))
	assert.Equal(t, time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC), res.Transactions[0].TransactionDate.UTC())
}

// firstMatch is the reference reading of category order: walk categories and
// their patterns as declared and stop at the first hit.
func firstMatch(cfg *patterns.Config, desc string) string {
	upper := strings.ToUpper(desc)
	for _, cat := range cfg.Categories {
		for _, p := range cat.Patterns {
			if p.Literal && strings.Contains(upper, strings.ToUpper(p.Source)) {
				return cat.Name
			}
			if !p.Literal && p.Regex.MatchString(upper) {
				return cat.Name
			}
		}
	}
	return patterns.OtherCategory
}

func TestCategory_FirstMatchWinsAndIsIdempotent(t *testing.T) {
	cfg, err := patterns.Parse([]byte(`
pdf_types:
  x:
    family: stream
    detect: [X]
    stream: {amount_offset: 0, description_offsets: [1]}
categories:
  - {name: A, patterns: ['SUPER.*MARKET', 'COFFEE']}
  - {name: B, patterns: ['MARKET', 'SUPERMARKET', 'TAXI']}
  - {name: C, patterns: ['COFFEE', '^TAXI', 'BAR']}
  - {name: D, patterns: ['ЁЛКА', 'BARISTA']}
`))
	require.NoError(t, err)
	c := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, "A", c.Category("SUPERMARKET 24"), "A is declared before B")
	assert.Equal(t, "B", c.Category("FLEA MARKET"))
	assert.Equal(t, "B", c.Category("TAXI RIDE"), "literal in B beats the anchored regex in C")
	assert.Equal(t, "C", c.Category("BARISTA"), "C declares BAR before D declares BARISTA")
	assert.Equal(t, "D", c.Category("ёлка"))

	words := []string{"SUPER", "MARKET", "COFFEE", "TAXI", "BAR", "BARISTA", "ЁЛКА", "SHOP", "24", "OOO"}
	faker := gofakeit.New(7)
	for i := 0; i < 500; i++ {
		parts := make([]string, faker.Number(1, 5))
		for j := range parts {
			parts[j] = words[faker.Number(0, len(words)-1)]
		}
		desc := strings.Join(parts, faker.RandomString([]string{" ", "", "*"}))

		first := c.Category(desc)
		assert.Equal(t, first, c.Category(desc), desc)
		assert.Equal(t, firstMatch(cfg, desc), first, desc)
	}
}

func TestEngine_DuplicateLiterals(t *testing.T) {
	e := NewEngine([]patterns.Category{
		{Name: "first", Patterns: []patterns.Pattern{{Source: "ABC", Literal: true}}},
		{Name: "second", Patterns: []patterns.Pattern{
			{Source: "ABC", Literal: true},
			{Source: "X+", Regex: regexp.MustCompile("(?i)X+")},
		}},
	})
	assert.Equal(t, 2, e.PatternCount())

	m, ok := e.Match("ZZABCZZ")
	require.True(t, ok)
	assert.Equal(t, "first", m.category)

	_, ok = NewEngine(nil).Match("ANY")
	assert.False(t, ok)
}
