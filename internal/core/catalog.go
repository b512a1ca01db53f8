package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// CatalogEntry is the price and tax rate an invoice line falls back to when
// the draft leaves them unset.
type CatalogEntry struct {
	ItemID    int64
	UnitPrice decimal.Decimal
	TaxRate   *decimal.Decimal
}

// Catalog resolves the current price and tax rate of an item. It replaces
// hardcoded pricing in the invoice engine.
type Catalog interface {
	Resolve(ctx context.Context, r Reader, itemID int64) (*CatalogEntry, error)
}

type itemCatalog struct{}

// NewItemCatalog constructs a Catalog backed by the items themselves.
func NewItemCatalog() Catalog {
	return &itemCatalog{}
}

// Resolve reads through r so that a posting sees the catalog as of its own
// transaction. Returns ErrNotFound for unknown items.
func (c *itemCatalog) Resolve(ctx context.Context, r Reader, itemID int64) (*CatalogEntry, error) {
	item, err := r.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog entry for item %d: %w", itemID, err)
	}
	return &CatalogEntry{ItemID: item.ID, UnitPrice: item.UnitPrice, TaxRate: item.TaxRate}, nil
}
