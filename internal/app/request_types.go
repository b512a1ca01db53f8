package app

import (
	"github.com/shopspring/decimal"
)

// InvoiceRequest is the input for drafting, quoting, or posting an invoice.
// Number is optional; when set it is unique per kind and makes PostInvoice
// safe to retry.
type InvoiceRequest struct {
	Number      string               `json:"number" validate:"max=64"`
	Kind        string               `json:"kind" validate:"required,oneof=SALE PURCHASE SALE_RETURN PURCHASE_RETURN"`
	PartyID     int64                `json:"party_id" validate:"required,gt=0"`
	PaymentMode string               `json:"payment_mode" validate:"max=32"`
	TaxMode     string               `json:"tax_mode" validate:"required"`
	GSTType     string               `json:"gst_type"`
	Lines       []InvoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// InvoiceLineRequest is a single line within an InvoiceRequest.
type InvoiceLineRequest struct {
	ItemID    int64            `json:"item_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"` // nil means "use catalog price"
	Discount  decimal.Decimal  `json:"discount"`
	TaxRate   *decimal.Decimal `json:"tax_rate"` // nil means "use catalog rate"
}

// UpdateLinesRequest replaces the lines of a draft invoice.
type UpdateLinesRequest struct {
	Lines []InvoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// AdjustStockRequest is a signed manual stock correction.
type AdjustStockRequest struct {
	ItemID      int64           `json:"item_id" validate:"required,gt=0"`
	Delta       decimal.Decimal `json:"delta"`
	Reason      string          `json:"reason" validate:"required,max=200"`
	ReferenceID string          `json:"reference_id" validate:"max=128"`
}

// ConvertStockRequest moves quantity out of a stock lot into one or more items.
type ConvertStockRequest struct {
	LotID       int64                     `json:"lot_id" validate:"required,gt=0"`
	ReferenceID string                    `json:"reference_id" validate:"max=128"`
	Targets     []ConversionTargetRequest `json:"targets" validate:"required,min=1,dive"`
}

// ConversionTargetRequest names either an existing item or a new one to create.
type ConversionTargetRequest struct {
	ItemID   int64              `json:"item_id" validate:"omitempty,gt=0"`
	NewItem  *CreateItemRequest `json:"new_item"`
	Quantity decimal.Decimal    `json:"quantity"`
}

// ApplyPaymentRequest records money received from (IN) or paid to (OUT) a party.
type ApplyPaymentRequest struct {
	PartyID     int64           `json:"party_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   string          `json:"direction" validate:"required,oneof=IN OUT"`
	ReferenceID string          `json:"reference_id" validate:"required,max=128"`
}

// CreateItemRequest adds a catalog item.
type CreateItemRequest struct {
	Name            string           `json:"name" validate:"required,max=200"`
	SKU             string           `json:"sku" validate:"max=64"`
	Unit            string           `json:"unit" validate:"max=32"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	TaxRate         *decimal.Decimal `json:"tax_rate"`
	OpeningQuantity decimal.Decimal  `json:"opening_quantity"`
}

// ReceiveLotRequest records a batch of raw stock.
type ReceiveLotRequest struct {
	SourceRef string          `json:"source_ref" validate:"max=128"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// CreatePartyRequest adds a customer or supplier.
type CreatePartyRequest struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Role           string          `json:"role" validate:"required,oneof=CUSTOMER SUPPLIER"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}
