package app

import (
	"context"

	"billing-engine/internal/core"
)

// ApplicationService is the single interface the adapters call. It validates
// request shape, translates requests into core types, and logs failed writes.
// Implementations must contain no display logic of any kind.
type ApplicationService interface {
	// PostInvoice creates and posts an invoice in one transaction. Retrying
	// with the same Number returns the invoice posted by the first attempt.
	PostInvoice(ctx context.Context, req InvoiceRequest) (*core.Invoice, error)

	// CreateDraft stores an invoice without touching stock or balances.
	CreateDraft(ctx context.Context, req InvoiceRequest) (*core.Invoice, error)

	// UpdateDraftLines replaces the lines of a DRAFT invoice.
	UpdateDraftLines(ctx context.Context, id int64, req UpdateLinesRequest) (*core.Invoice, error)

	// QuoteInvoice prices an invoice against the catalog without writing anything.
	QuoteInvoice(ctx context.Context, req InvoiceRequest) (*core.Invoice, error)

	// PostDraft posts a previously created DRAFT invoice.
	PostDraft(ctx context.Context, id int64) (*core.Invoice, error)

	// VoidInvoice reverses every stock and balance effect of a POSTED invoice.
	VoidInvoice(ctx context.Context, id int64) (*core.Invoice, error)

	GetInvoice(ctx context.Context, id int64) (*core.Invoice, error)

	// CreateItem adds a catalog item with optional opening stock.
	CreateItem(ctx context.Context, req CreateItemRequest) (*core.Item, error)

	GetItem(ctx context.Context, id int64) (*core.Item, error)

	// AdjustStock applies a manual signed correction to an item.
	AdjustStock(ctx context.Context, req AdjustStockRequest) (*core.Item, error)

	// ReceiveLot records a batch of raw stock.
	ReceiveLot(ctx context.Context, req ReceiveLotRequest) (*core.StockLot, error)

	GetStockLot(ctx context.Context, id int64) (*core.StockLot, error)

	// ConvertStockToItem moves quantity from a lot into items atomically.
	ConvertStockToItem(ctx context.Context, req ConvertStockRequest) (*core.ConversionResult, error)

	// CreateParty adds a customer or supplier with an optional opening balance.
	CreateParty(ctx context.Context, req CreatePartyRequest) (*core.Party, error)

	GetParty(ctx context.Context, id int64) (*core.Party, error)

	// ApplyPayment records a payment against a party's balance.
	ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*core.Party, error)

	// VoidPayment reverses a recorded payment.
	VoidPayment(ctx context.Context, partyID int64, referenceID string) (*core.Party, error)

	// History lists the ledger entries for one item, lot, or party.
	History(ctx context.Context, target core.LedgerTarget, id int64) (*HistoryResult, error)
}
