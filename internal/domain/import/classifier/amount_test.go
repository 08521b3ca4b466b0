package classifier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"1 000 ₽", "1000"},
		{"-1 234,56", "-1234.56"},
		{"−500,00 ₽", "-500"},
		{"+30 000,00", "30000"},
		{"1,234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"-990,00 руб.", "-990"},
		{"1.234.567", "1234567"},
		{"12,345", "12345"},
		{"100-", "-100"},
		{"1 000 ₽", "1000"},
		{"0,5", "0.5"},
		{"10.500", "10.5"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw, "₽")
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}

	t.Run("sub-kopeck amounts are rejected", func(t *testing.T) {
		for _, raw := range []string{"1.234 ₽", "-0.005", "99.999"} {
			_, err := ParseAmount(raw, "₽")
			assert.ErrorIs(t, err, errPrecision, raw)
		}
	})

	for _, raw := range []string{"", "₽", "—", "abc", "1-2-3"} {
		t.Run("invalid "+raw, func(t *testing.T) {
			_, err := ParseAmount(raw, "₽")
			assert.Error(t, err)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "-1000 ₽", FormatAmount(decimal.NewFromInt(-1000), "₽"))
	assert.Equal(t, "12.5", FormatAmount(decimal.RequireFromString("12.50"), ""))
}
