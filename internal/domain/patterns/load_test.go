package patterns

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleConfig = "../../../configs/patterns.example.yaml"

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(exampleConfig)
	require.NoError(t, err)

	t.Run("keeps type declaration order", func(t *testing.T) {
		require.Len(t, cfg.Types, 3)
		assert.Equal(t, "tbank_card", cfg.Types[0].Tag)
		assert.Equal(t, "sber_passbook", cfg.Types[1].Tag)
		assert.Equal(t, "ozon_card", cfg.Types[2].Tag)
	})

	t.Run("compiles grid layout", func(t *testing.T) {
		layout, ok := cfg.Type("tbank_card")
		require.True(t, ok)
		assert.Equal(t, FamilyGrid, layout.Family)
		assert.Equal(t, []int{0, 3, 4, 5}, layout.Columns)
		assert.Equal(t, GridFields{Date: 0, Time: -1, Amount: 1, Description: 2, Card: 3}, layout.Fields)
		assert.True(t, layout.MergeSplitHeader)
		assert.True(t, layout.StartMarker.MatchString("Дата и время операции"))
		assert.True(t, layout.EndMarker.MatchString("Пополнения: 12 000 ₽"))
		assert.Equal(t, "₽", layout.Currency)
	})

	t.Run("compiles stream layouts", func(t *testing.T) {
		sber, ok := cfg.Type("sber_passbook")
		require.True(t, ok)
		assert.True(t, sber.Family.IsStream())
		assert.Equal(t, 4, sber.Stream.RecordLines)
		assert.Equal(t, -1, sber.Stream.CardOffset)
		assert.True(t, sber.Stream.TimeRequired)

		ozon, ok := cfg.Type("ozon_card")
		require.True(t, ok)
		assert.Equal(t, FamilyStreamDescriptionFirst, ozon.Family)
		assert.Equal(t, 2, ozon.Stream.SkipAfterDate)
		assert.Equal(t, 1, ozon.Stream.RecordLines)
	})

	t.Run("splits literal and regex patterns", func(t *testing.T) {
		require.NotEmpty(t, cfg.Categories)
		assert.Equal(t, "Еда", cfg.Categories[0].Name)
		assert.True(t, cfg.Categories[0].Patterns[0].Literal)

		transport := cfg.Categories[2]
		assert.False(t, transport.Patterns[0].Literal)
		assert.True(t, transport.Patterns[0].Regex.MatchString("yandex*go"))
	})

	t.Run("resolves action field aliases", func(t *testing.T) {
		first := cfg.SpecialConditions[0]
		require.Len(t, first.Actions, 3)
		assert.Equal(t, FieldTransactionType, first.Actions[0].Field)
		assert.Equal(t, FieldTargetAmount, first.Actions[1].Field)
		assert.Equal(t, ExprNegatedAmount, first.Actions[1].Value.Kind)
		assert.Equal(t, FieldTargetCashSource, first.Actions[2].Field)
	})
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no types", `categories: []`},
		{"types as list", "pdf_types:\n  - a\n"},
		{"unknown family", `
pdf_types:
  x: {family: tabular, detect: [X]}
`},
		{"missing detect", `
pdf_types:
  x: {family: stream, stream: {amount_offset: 0, description_offsets: [0]}}
`},
		{"grid without amount column", `
pdf_types:
  x: {family: grid, detect: [X], start_marker: '^D', fields: {date: 0, description: 1}}
`},
		{"grid field outside kept columns", `
pdf_types:
  x: {family: grid, detect: [X], start_marker: '^D', columns: [0, 2], fields: {date: 0, amount: 1, description: 2}}
`},
		{"stream offset outside window", `
pdf_types:
  x: {family: stream, detect: [X], stream: {record_lines: 2, amount_offset: 2, description_offsets: [0]}}
`},
		{"bad category regex", `
pdf_types:
  x: {family: stream, detect: [X], stream: {amount_offset: 0, description_offsets: [1]}}
categories:
  - {name: Bad, patterns: ['(unclosed']}
`},
		{"unknown action field", `
pdf_types:
  x: {family: stream, detect: [X], stream: {amount_offset: 0, description_offsets: [1]}}
special_conditions:
  - trigger: FOO
    actions: [{field: nonexistent, value: x}]
`},
		{"misspelled value token", `
pdf_types:
  x: {family: stream, detect: [X], stream: {amount_offset: 0, description_offsets: [1]}}
special_conditions:
  - trigger: FOO
    actions: [{field: amount, value: '$CURENT'}]
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig), "expected ErrConfig, got %v", err)

			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
