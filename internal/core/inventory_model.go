package core

import (
	"github.com/shopspring/decimal"
)

// ConversionTarget is one destination of a stock conversion. Exactly one of
// ItemID and NewItem is set. A NewItem is created with zero stock and then
// credited through the stock ledger like any other target.
type ConversionTarget struct {
	ItemID   int64
	NewItem  *NewItem
	Quantity decimal.Decimal
}

// ConversionRequest moves quantity out of one stock lot into items.
// ReferenceID is the retry key; an empty one is generated.
type ConversionRequest struct {
	LotID       int64
	ReferenceID string
	Targets     []ConversionTarget
}

// ConversionResult is the state after a conversion. Items lists existing
// targets by ascending id followed by created items in request order.
type ConversionResult struct {
	ReferenceID string          `json:"reference_id"`
	Lot         *StockLot       `json:"lot"`
	Items       []Item          `json:"items"`
	Moved       decimal.Decimal `json:"moved"`
}

// PaymentDirection is IN for money received from a party, OUT for money paid to one.
type PaymentDirection string

const (
	PaymentIn  PaymentDirection = "IN"
	PaymentOut PaymentDirection = "OUT"
)

func (d PaymentDirection) Valid() bool {
	return d == PaymentIn || d == PaymentOut
}

// balanceDelta maps a payment onto the party balance sign convention.
func (d PaymentDirection) balanceDelta(amount decimal.Decimal) decimal.Decimal {
	if d == PaymentIn {
		return amount.Neg()
	}
	return amount
}
