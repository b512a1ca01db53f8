package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// Reader is the non-locking read side shared by Store and Tx.
type Reader interface {
	GetItem(ctx context.Context, id int64) (*Item, error)
	GetStockLot(ctx context.Context, id int64) (*StockLot, error)
	GetParty(ctx context.Context, id int64) (*Party, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListLedgerEntries(ctx context.Context, target LedgerTarget, targetID int64) ([]LedgerEntry, error)
}

// Store is the durable record store. WithTx runs fn inside one transaction:
// either every write made through tx commits or none does. Implementations
// retry fn on ErrConflict a bounded number of times and then return
// ErrContention, so fn must be safe to run more than once.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional context threaded through the ledgers and the
// invoice engine. Lock* methods serialize access to one row until the
// transaction ends (row lock or version check, depending on the store).
// Missing rows are reported as ErrNotFound.
type Tx interface {
	Reader

	LockItem(ctx context.Context, id int64) (*Item, error)
	LockStockLot(ctx context.Context, id int64) (*StockLot, error)
	LockParty(ctx context.Context, id int64) (*Party, error)
	LockInvoice(ctx context.Context, id int64) (*Invoice, error)
	LockInvoiceByNumber(ctx context.Context, kind InvoiceKind, number string) (*Invoice, error)

	CreateItem(ctx context.Context, item *Item) error
	CreateStockLot(ctx context.Context, lot *StockLot) error
	CreateParty(ctx context.Context, party *Party) error
	CreateInvoice(ctx context.Context, inv *Invoice) error

	UpdateItemQuantity(ctx context.Context, id int64, quantity decimal.Decimal) error
	UpdateStockLotQuantity(ctx context.Context, id int64, quantity decimal.Decimal) error
	UpdatePartyBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	// UpdateInvoice persists header, totals, status, and replaces the lines.
	UpdateInvoice(ctx context.Context, inv *Invoice) error

	FindLedgerEntry(ctx context.Context, key LedgerKey) (*LedgerEntry, error)
	ListLedgerEntriesBySource(ctx context.Context, sourceID string) ([]LedgerEntry, error)
	// InsertLedgerEntry fails with ErrDuplicateLedgerEntry when the key exists.
	InsertLedgerEntry(ctx context.Context, entry *LedgerEntry) error
}

// Guard serializes work on one key across service instances. Acquire returns
// ErrContention when the key stays held past the guard's retry budget.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
