package currency

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func testRates(t *testing.T) *Rates {
	t.Helper()
	rates, err := NewRates("IRR", map[string]decimal.Decimal{
		"usd": decimal.NewFromInt(600000),
		"EUR": decimal.NewFromInt(650000),
	})
	require.NoError(t, err)
	return rates
}

func TestNewRates(t *testing.T) {
	rates := testRates(t)

	assert.Equal(t, "IRR", rates.Base())
	assert.Equal(t, []string{"EUR", "IRR", "USD"}, rates.Codes())
	assert.True(t, rates.Supported("usd"))
	assert.False(t, rates.Supported("GBP"))

	rate, err := rates.Rate("IRR")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestNewRatesRejectsBadInput(t *testing.T) {
	_, err := NewRates("XX", nil)
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)

	_, err = NewRates("IRR", map[string]decimal.Decimal{"USD": decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestConvert(t *testing.T) {
	rates := testRates(t)

	tests := []struct {
		name   string
		amount string
		from   string
		to     string
		want   string
	}{
		{"usd to irr", "12.5", "USD", "IRR", "7500000"},
		{"irr to usd rounds to cents", "1000000", "IRR", "USD", "1.67"},
		{"usd to eur", "100", "USD", "EUR", "92.31"},
		{"same currency only rounds", "10.005", "USD", "USD", "10.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rates.Convert(decimal.RequireFromString(tt.amount), tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := rates.Convert(decimal.NewFromInt(1), "USD", "GBP")
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
}

func TestScale(t *testing.T) {
	assert.Equal(t, int32(2), Scale("USD"))
	assert.Equal(t, int32(0), Scale("IRR"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1,234.50 USD", Format(decimal.RequireFromString("1234.5"), "usd", language.English))
	assert.Contains(t, Format(decimal.NewFromInt(1500000), "IRR", language.Persian), "IRR")
}

func TestWithOverrides(t *testing.T) {
	rates := testRates(t)
	updated, err := rates.With(map[string]decimal.Decimal{"usd": decimal.NewFromInt(700000)})
	require.NoError(t, err)

	rate, _ := updated.Rate("USD")
	assert.True(t, rate.Equal(decimal.NewFromInt(700000)))
	original, _ := rates.Rate("USD")
	assert.True(t, original.Equal(decimal.NewFromInt(600000)))
}

func TestStaticSource(t *testing.T) {
	rates := testRates(t)
	got, err := StaticSource{Rates: rates}.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, rates, got)
}
