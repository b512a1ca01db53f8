package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryService manages items and stock lots outside of invoicing:
// catalog creation, goods receipts into lots, and manual corrections.
// Every quantity change goes through StockLedger.
type InventoryService interface {
	// CreateItem adds a catalog item. A positive OpeningQuantity is booked as an OPENING entry.
	CreateItem(ctx context.Context, in NewItem) (*Item, error)
	// ReceiveLot records a batch of raw stock as a new lot with a LOT_RECEIPT entry.
	ReceiveLot(ctx context.Context, in NewStockLot) (*StockLot, error)
	// AdjustStock applies a signed manual correction. referenceID is the retry
	// key; replaying it returns the item without adjusting again.
	AdjustStock(ctx context.Context, itemID int64, delta decimal.Decimal, reason, referenceID string) (*Item, error)
	// History lists the ledger entries recorded against one item, lot, or party.
	History(ctx context.Context, target LedgerTarget, id int64) ([]LedgerEntry, error)
}

type inventoryService struct {
	store Store
	stock *StockLedger
}

func NewInventoryService(store Store) InventoryService {
	return &inventoryService{store: store, stock: NewStockLedger()}
}

func (s *inventoryService) CreateItem(ctx context.Context, in NewItem) (*Item, error) {
	if err := validateNewItem(in); err != nil {
		return nil, err
	}

	var out *Item
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		item := &Item{
			Name:      in.Name,
			SKU:       in.SKU,
			Unit:      in.Unit,
			UnitPrice: in.UnitPrice,
			TaxRate:   in.TaxRate,
			Quantity:  decimal.Zero,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.CreateItem(ctx, item); err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		if in.OpeningQuantity.IsPositive() {
			src := Source{ID: OpeningSourceID(TargetItem, item.ID), Reason: ReasonOpening}
			credited, err := s.stock.Adjust(ctx, tx, item.ID, in.OpeningQuantity, src)
			if err != nil {
				return fmt.Errorf("failed to book opening stock for item %d: %w", item.ID, err)
			}
			item = credited
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *inventoryService) ReceiveLot(ctx context.Context, in NewStockLot) (*StockLot, error) {
	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: lot quantity must be positive, got %s", ErrInvalidQuantity, in.Quantity)
	}
	if in.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost cannot be negative", ErrInvalidAmount)
	}

	var out *StockLot
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		lot := &StockLot{
			SourceRef: in.SourceRef,
			Quantity:  decimal.Zero,
			UnitCost:  in.UnitCost,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.CreateStockLot(ctx, lot); err != nil {
			return fmt.Errorf("failed to create stock lot: %w", err)
		}
		src := Source{ID: LotSourceID(lot.ID), Reason: ReasonLotReceipt, Note: in.SourceRef}
		filled, err := s.stock.FillLot(ctx, tx, lot.ID, in.Quantity, src)
		if err != nil {
			return fmt.Errorf("failed to receive stock lot %d: %w", lot.ID, err)
		}
		out = filled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *inventoryService) AdjustStock(ctx context.Context, itemID int64, delta decimal.Decimal, reason, referenceID string) (*Item, error) {
	if referenceID == "" {
		referenceID = uuid.NewString()
	}
	src := Source{ID: AdjustmentSourceID(referenceID), Reason: ReasonAdjustment, Note: reason}

	var out *Item
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		item, err := s.stock.Adjust(ctx, tx, itemID, delta, src)
		if err != nil {
			return fmt.Errorf("failed to adjust item %d: %w", itemID, err)
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *inventoryService) History(ctx context.Context, target LedgerTarget, id int64) ([]LedgerEntry, error) {
	switch target {
	case TargetItem, TargetStockLot, TargetParty:
	default:
		return nil, fmt.Errorf("%w: unknown ledger target %q", ErrInvalidInput, target)
	}
	entries, err := s.store.ListLedgerEntries(ctx, target, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries for %s %d: %w", target, id, err)
	}
	return entries, nil
}
