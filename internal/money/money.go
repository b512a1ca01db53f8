// Package money holds the fixed-point amount and tax computations used by invoices.
// Nothing here touches storage; every function is pure.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidTaxMode  = errors.New("invalid tax mode")
)

// TaxMode says whether a stated amount already includes tax.
type TaxMode string

const (
	InTax  TaxMode = "IN_TAX"
	OutTax TaxMode = "OUT_TAX"
)

var hundred = decimal.NewFromInt(100)

// ParseTaxMode accepts "IN_TAX"/"OUT_TAX" in any case.
func ParseTaxMode(s string) (TaxMode, error) {
	switch TaxMode(strings.ToUpper(strings.TrimSpace(s))) {
	case InTax:
		return InTax, nil
	case OutTax:
		return OutTax, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTaxMode, s)
}

func (m TaxMode) Valid() bool {
	return m == InTax || m == OutTax
}

// Round applies banker's rounding to 2 decimal places. Only final tax and
// grand-total figures are rounded.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// LineTotal returns quantity*unitPrice - discount, unrounded.
func LineTotal(quantity, unitPrice, discount decimal.Decimal) (decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidQuantity, quantity)
	}
	if unitPrice.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: unit price cannot be negative, got %s", ErrInvalidAmount, unitPrice)
	}
	if discount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: discount cannot be negative, got %s", ErrInvalidAmount, discount)
	}
	gross := quantity.Mul(unitPrice)
	if discount.GreaterThan(gross) {
		return decimal.Zero, fmt.Errorf("%w: discount %s exceeds line amount %s", ErrInvalidAmount, discount, gross)
	}
	return gross.Sub(discount), nil
}

// TaxPortion returns the unrounded tax contained in (IN_TAX) or owed on top of
// (OUT_TAX) amount at rate percent.
func TaxPortion(amount, rate decimal.Decimal, mode TaxMode) (decimal.Decimal, error) {
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: tax rate cannot be negative, got %s", ErrInvalidAmount, rate)
	}
	switch mode {
	case InTax:
		return amount.Mul(rate).Div(hundred.Add(rate)), nil
	case OutTax:
		return amount.Mul(rate).Div(hundred), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidTaxMode, mode)
}

// Breakdown is the final tax split of an amount.
//
//	Base : pre-tax amount
//	Tax  : tax portion, rounded
//	Total: tax-inclusive amount, rounded
type Breakdown struct {
	Base  decimal.Decimal `json:"base"`
	Tax   decimal.Decimal `json:"tax"`
	Total decimal.Decimal `json:"total"`
}

// ComputeTax splits a single amount at one rate.
func ComputeTax(amount, rate decimal.Decimal, mode TaxMode) (Breakdown, error) {
	return Summarize([]TaxedAmount{{Amount: amount, Rate: rate}}, mode)
}

// TaxedAmount is one line's unrounded total and the rate that applies to it.
type TaxedAmount struct {
	Amount decimal.Decimal
	Rate   decimal.Decimal
}

// Summarize sums the unrounded line amounts and their unrounded tax portions,
// then rounds only the resulting tax and total.
func Summarize(lines []TaxedAmount, mode TaxMode) (Breakdown, error) {
	if !mode.Valid() {
		return Breakdown{}, fmt.Errorf("%w: %q", ErrInvalidTaxMode, mode)
	}
	sum := decimal.Zero
	tax := decimal.Zero
	for _, l := range lines {
		portion, err := TaxPortion(l.Amount, l.Rate, mode)
		if err != nil {
			return Breakdown{}, err
		}
		sum = sum.Add(l.Amount)
		tax = tax.Add(portion)
	}
	tax = Round(tax)

	if mode == InTax {
		total := Round(sum)
		return Breakdown{Base: total.Sub(tax), Tax: tax, Total: total}, nil
	}
	return Breakdown{Base: sum, Tax: tax, Total: Round(sum.Add(tax))}, nil
}
