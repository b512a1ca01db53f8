package core

import (
	"time"

	"billing-engine/internal/money"

	"github.com/shopspring/decimal"
)

// InvoiceKind is the closed set of invoice directions. Returns are the
// compensating documents for a posted sale or purchase.
type InvoiceKind string

const (
	KindSale           InvoiceKind = "SALE"
	KindPurchase       InvoiceKind = "PURCHASE"
	KindSaleReturn     InvoiceKind = "SALE_RETURN"
	KindPurchaseReturn InvoiceKind = "PURCHASE_RETURN"
)

func (k InvoiceKind) Valid() bool {
	switch k {
	case KindSale, KindPurchase, KindSaleReturn, KindPurchaseReturn:
		return true
	}
	return false
}

// removesStock is true when posting takes goods out of the shop.
func (k InvoiceKind) removesStock() bool {
	return k == KindSale || k == KindPurchaseReturn
}

// balanceSign is +1 when posting increases what the party owes the business.
func (k InvoiceKind) balanceSign() decimal.Decimal {
	if k == KindSale || k == KindPurchaseReturn {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

func (k InvoiceKind) stockReason() Reason {
	switch k {
	case KindSale:
		return ReasonSale
	case KindPurchase:
		return ReasonPurchase
	case KindSaleReturn:
		return ReasonSaleReturn
	default:
		return ReasonPurchaseReturn
	}
}

// InvoiceStatus progresses through:
//
//	DRAFT → POSTED → VOID
//
// A VOID invoice is terminal; a replacement must be a new invoice.
type InvoiceStatus string

const (
	StatusDraft  InvoiceStatus = "DRAFT"
	StatusPosted InvoiceStatus = "POSTED"
	StatusVoid   InvoiceStatus = "VOID"
)

// Invoice is a sale, purchase, or return document.
//
// For OUT_TAX, Subtotal is the pre-tax sum of lines and GrandTotal = Subtotal + TaxAmount.
// For IN_TAX, GrandTotal is the sum of lines and Subtotal = GrandTotal - TaxAmount.
type Invoice struct {
	ID          int64          `json:"id"`
	Number      string         `json:"number,omitempty"`
	Kind        InvoiceKind    `json:"kind"`
	PartyID     int64          `json:"party_id"`
	PaymentMode string         `json:"payment_mode"`
	TaxMode     money.TaxMode  `json:"tax_mode"`
	GSTType     *money.TaxMode `json:"gst_type,omitempty"`
	Lines       []InvoiceLine  `json:"lines"`

	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	GrandTotal decimal.Decimal `json:"grand_total"`

	Status    InvoiceStatus `json:"status"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	PostedAt  *time.Time    `json:"posted_at,omitempty"`
	VoidedAt  *time.Time    `json:"voided_at,omitempty"`
}

// InvoiceLine is one line item. UnitPrice and TaxRate are nil on a draft that
// defers to the catalog; posting freezes the catalog values into them.
type InvoiceLine struct {
	LineNumber int              `json:"line_number"`
	ItemID     int64            `json:"item_id"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
	Discount   decimal.Decimal  `json:"discount"`
	TaxRate    *decimal.Decimal `json:"tax_rate,omitempty"`
	LineTotal  decimal.Decimal  `json:"line_total"`
	LineTax    decimal.Decimal  `json:"line_tax"` // unrounded
}

// InvoiceDraft is the input for creating (and optionally posting) an invoice.
// Number, when set, is unique per kind and doubles as the retry key.
type InvoiceDraft struct {
	Number      string
	Kind        InvoiceKind
	PartyID     int64
	PaymentMode string
	TaxMode     money.TaxMode
	GSTType     *money.TaxMode
	Lines       []InvoiceLineInput
}

// InvoiceLineInput is one line of a draft.
// A nil UnitPrice or TaxRate means "use the catalog value"; an explicit zero
// price is a free line.
type InvoiceLineInput struct {
	ItemID    int64
	Quantity  decimal.Decimal
	UnitPrice *decimal.Decimal
	Discount  decimal.Decimal
	TaxRate   *decimal.Decimal
}

// effectiveTaxMode is the mode used for the tax computation: the GST type when
// present, otherwise the invoice's generic tax mode.
func (inv *Invoice) effectiveTaxMode() money.TaxMode {
	if inv.GSTType != nil {
		return *inv.GSTType
	}
	return inv.TaxMode
}

func linesFromInput(in []InvoiceLineInput) []InvoiceLine {
	lines := make([]InvoiceLine, len(in))
	for i, l := range in {
		lines[i] = InvoiceLine{
			LineNumber: i + 1,
			ItemID:     l.ItemID,
			Quantity:   l.Quantity,
			UnitPrice:  cloneDecimal(l.UnitPrice),
			Discount:   l.Discount,
			TaxRate:    cloneDecimal(l.TaxRate),
		}
	}
	return lines
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
