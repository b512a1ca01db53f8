package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a sellable catalog entry. Quantity changes only through StockLedger.
type Item struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	SKU       string           `json:"sku"`
	Unit      string           `json:"unit"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	TaxRate   *decimal.Decimal `json:"tax_rate,omitempty"` // percent; nil = no catalog rate
	Quantity  decimal.Decimal  `json:"quantity"`
	Version   int64            `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// StockLot is raw stock awaiting conversion into Items.
type StockLot struct {
	ID        int64           `json:"id"`
	SourceRef string          `json:"source_ref"` // e.g. purchase batch number
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type PartyRole string

const (
	RoleCustomer PartyRole = "CUSTOMER"
	RoleSupplier PartyRole = "SUPPLIER"
)

func (r PartyRole) Valid() bool {
	return r == RoleCustomer || r == RoleSupplier
}

// Party is a customer or supplier with a running balance.
//
// Balance sign convention, for both roles:
//
//	positive: the party owes the business (receivable)
//	negative: the business owes the party (payable)
type Party struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Role      PartyRole       `json:"role"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewItem describes an item to create, either from catalog management or as
// the target of a stock conversion.
type NewItem struct {
	Name      string
	SKU       string
	Unit      string
	UnitPrice decimal.Decimal
	TaxRate   *decimal.Decimal
	// OpeningQuantity is booked through the stock ledger after creation.
	OpeningQuantity decimal.Decimal
}

type NewStockLot struct {
	SourceRef string
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
}

type NewParty struct {
	Name           string
	Role           PartyRole
	OpeningBalance decimal.Decimal
}

// ── Ledger entries ───────────────────────────────────────────────────────────

type LedgerTarget string

const (
	TargetItem     LedgerTarget = "ITEM"
	TargetStockLot LedgerTarget = "STOCK_LOT"
	TargetParty    LedgerTarget = "PARTY"
)

// Reason classifies why a quantity or balance changed.
type Reason string

const (
	ReasonSale           Reason = "SALE"
	ReasonPurchase       Reason = "PURCHASE"
	ReasonSaleReturn     Reason = "SALE_RETURN"
	ReasonPurchaseReturn Reason = "PURCHASE_RETURN"
	ReasonInvoiceVoid    Reason = "INVOICE_VOID"
	ReasonAdjustment     Reason = "ADJUSTMENT"
	ReasonOpening        Reason = "OPENING"
	ReasonLotReceipt     Reason = "LOT_RECEIPT"
	ReasonConversion     Reason = "CONVERSION"
	ReasonBalance        Reason = "BALANCE"
	ReasonBalanceVoid    Reason = "BALANCE_VOID"
)

// Source identifies the document or request behind a ledger mutation.
type Source struct {
	ID     string
	Reason Reason
	Note   string
}

func InvoiceSourceID(invoiceID int64) string { return fmt.Sprintf("invoice:%d", invoiceID) }
func PaymentSourceID(referenceID string) string { return "payment:" + referenceID }
func ConversionSourceID(ref string) string { return "conversion:" + ref }
func AdjustmentSourceID(ref string) string { return "adjust:" + ref }
func LotSourceID(lotID int64) string { return fmt.Sprintf("lot:%d", lotID) }
func OpeningSourceID(target LedgerTarget, id int64) string {
	return fmt.Sprintf("opening:%s:%d", target, id)
}

// LedgerKey is the idempotence key of a ledger entry. One source may touch
// several targets under the same reason; each (source, reason, target) pair is
// applied at most once.
type LedgerKey struct {
	SourceID string
	Reason   Reason
	Target   LedgerTarget
	TargetID int64
}

// LedgerEntry records a single quantity or balance mutation.
type LedgerEntry struct {
	ID         int64           `json:"id"`
	Target     LedgerTarget    `json:"target"`
	TargetID   int64           `json:"target_id"`
	Delta      decimal.Decimal `json:"delta"`
	Before     decimal.Decimal `json:"before"`
	After      decimal.Decimal `json:"after"`
	SourceID   string          `json:"source_id"`
	Reason     Reason          `json:"reason"`
	Note       string          `json:"note,omitempty"`
	ReversesID *int64          `json:"reverses_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (e LedgerEntry) Key() LedgerKey {
	return LedgerKey{SourceID: e.SourceID, Reason: e.Reason, Target: e.Target, TargetID: e.TargetID}
}
