package money_test

import (
	"testing"

	"billing-engine/internal/money"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLineTotal(t *testing.T) {
	tests := []struct {
		name     string
		qty      string
		price    string
		discount string
		want     string
		wantErr  error
	}{
		{name: "plain", qty: "2", price: "100", discount: "0", want: "200"},
		{name: "with discount", qty: "3", price: "19.99", discount: "5", want: "54.97"},
		{name: "fractional quantity kept unrounded", qty: "0.333", price: "10.01", discount: "0", want: "3.33333"},
		{name: "discount equals gross", qty: "1", price: "50", discount: "50", want: "0"},
		{name: "zero quantity", qty: "0", price: "10", discount: "0", wantErr: money.ErrInvalidQuantity},
		{name: "negative quantity", qty: "-1", price: "10", discount: "0", wantErr: money.ErrInvalidQuantity},
		{name: "discount above gross", qty: "1", price: "10", discount: "10.01", wantErr: money.ErrInvalidAmount},
		{name: "negative discount", qty: "1", price: "10", discount: "-1", wantErr: money.ErrInvalidAmount},
		{name: "negative price", qty: "1", price: "-10", discount: "0", wantErr: money.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := money.LineTotal(d(tt.qty), d(tt.price), d(tt.discount))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestComputeTax_MatchedPairAgrees(t *testing.T) {
	out, err := money.ComputeTax(d("200"), d("10"), money.OutTax)
	require.NoError(t, err)
	assert.Equal(t, "200.00", out.Base.StringFixed(2))
	assert.Equal(t, "20.00", out.Tax.StringFixed(2))
	assert.Equal(t, "220.00", out.Total.StringFixed(2))

	in, err := money.ComputeTax(d("220"), d("10"), money.InTax)
	require.NoError(t, err)
	assert.True(t, in.Tax.Equal(out.Tax), "IN_TAX tax %s != OUT_TAX tax %s", in.Tax, out.Tax)
	assert.True(t, in.Base.Equal(out.Base), "IN_TAX base %s != OUT_TAX base %s", in.Base, out.Base)
	assert.True(t, in.Total.Equal(out.Total))
}

func TestComputeTax_BankersRounding(t *testing.T) {
	// 0.25 * 10% = 0.025 -> rounds half to even = 0.02
	b, err := money.ComputeTax(d("0.25"), d("10"), money.OutTax)
	require.NoError(t, err)
	assert.Equal(t, "0.02", b.Tax.StringFixed(2))

	// 0.35 * 10% = 0.035 -> 0.04
	b, err = money.ComputeTax(d("0.35"), d("10"), money.OutTax)
	require.NoError(t, err)
	assert.Equal(t, "0.04", b.Tax.StringFixed(2))
}

func TestSummarize_RoundsOnlyFinalFigures(t *testing.T) {
	// Each line tax is 0.005; rounding per line would give 0.00 + 0.00 (half-even)
	// while summing first gives 0.01.
	lines := []money.TaxedAmount{
		{Amount: d("0.05"), Rate: d("10")},
		{Amount: d("0.05"), Rate: d("10")},
	}
	b, err := money.Summarize(lines, money.OutTax)
	require.NoError(t, err)
	assert.Equal(t, "0.01", b.Tax.StringFixed(2))
	assert.Equal(t, "0.11", b.Total.StringFixed(2))
	assert.True(t, b.Base.Equal(d("0.10")))
}

func TestSummarize_MixedRates(t *testing.T) {
	lines := []money.TaxedAmount{
		{Amount: d("105"), Rate: d("5")},
		{Amount: d("118"), Rate: d("18")},
		{Amount: d("40"), Rate: d("0")},
	}
	b, err := money.Summarize(lines, money.InTax)
	require.NoError(t, err)
	assert.Equal(t, "23.00", b.Tax.StringFixed(2))
	assert.Equal(t, "263.00", b.Total.StringFixed(2))
	assert.Equal(t, "240.00", b.Base.StringFixed(2))
}

func TestSummarize_InvalidInput(t *testing.T) {
	_, err := money.Summarize(nil, money.TaxMode("GROSS"))
	require.ErrorIs(t, err, money.ErrInvalidTaxMode)

	_, err = money.ComputeTax(d("10"), d("-1"), money.OutTax)
	require.ErrorIs(t, err, money.ErrInvalidAmount)
}

func TestParseTaxMode(t *testing.T) {
	m, err := money.ParseTaxMode(" in_tax ")
	require.NoError(t, err)
	assert.Equal(t, money.InTax, m)

	m, err = money.ParseTaxMode("OUT_TAX")
	require.NoError(t, err)
	assert.Equal(t, money.OutTax, m)

	_, err = money.ParseTaxMode("VAT")
	assert.ErrorIs(t, err, money.ErrInvalidTaxMode)
}
