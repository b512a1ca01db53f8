package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StockLedger owns item and stock-lot quantities. It is the only code that
// writes them. All methods are TX-scoped: they run inside the caller's
// transaction so several mutations can commit or roll back together.
//
// Each successful call records a LedgerEntry keyed by (source, reason, target).
// Replaying an already-applied key returns the current row unchanged.
type StockLedger struct{}

func NewStockLedger() *StockLedger {
	return &StockLedger{}
}

// Reserve decrements an item's stock. Fails with ErrInsufficientStock, leaving
// the item untouched, when the result would be negative.
func (l *StockLedger) Reserve(ctx context.Context, tx Tx, itemID int64, qty decimal.Decimal, src Source) (*Item, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: reserve quantity must be positive, got %s", ErrInvalidQuantity, qty)
	}
	return l.applyItem(ctx, tx, itemID, qty.Neg(), src)
}

// Release increments an item's stock.
func (l *StockLedger) Release(ctx context.Context, tx Tx, itemID int64, qty decimal.Decimal, src Source) (*Item, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: release quantity must be positive, got %s", ErrInvalidQuantity, qty)
	}
	return l.applyItem(ctx, tx, itemID, qty, src)
}

// Adjust applies a signed delta. A negative result is still refused.
func (l *StockLedger) Adjust(ctx context.Context, tx Tx, itemID int64, delta decimal.Decimal, src Source) (*Item, error) {
	if delta.IsZero() {
		return nil, fmt.Errorf("%w: adjustment delta cannot be zero", ErrInvalidQuantity)
	}
	return l.applyItem(ctx, tx, itemID, delta, src)
}

// DrawLot decrements a stock lot's remaining quantity.
func (l *StockLedger) DrawLot(ctx context.Context, tx Tx, lotID int64, qty decimal.Decimal, src Source) (*StockLot, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: draw quantity must be positive, got %s", ErrInvalidQuantity, qty)
	}
	return l.applyLot(ctx, tx, lotID, qty.Neg(), src)
}

// FillLot increments a stock lot's remaining quantity.
func (l *StockLedger) FillLot(ctx context.Context, tx Tx, lotID int64, qty decimal.Decimal, src Source) (*StockLot, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: fill quantity must be positive, got %s", ErrInvalidQuantity, qty)
	}
	return l.applyLot(ctx, tx, lotID, qty, src)
}

func (l *StockLedger) applyItem(ctx context.Context, tx Tx, itemID int64, delta decimal.Decimal, src Source) (*Item, error) {
	// The row lock comes first: with it held, no other transaction can be
	// between its own duplicate check and insert for this item.
	item, err := tx.LockItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	after, applied, err := recordDelta(ctx, tx, TargetItem, itemID, item.Quantity, delta, src)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return nil, fmt.Errorf("%w: item %d (%s) has %s, need %s",
				ErrInsufficientStock, item.ID, item.SKU, item.Quantity.String(), delta.Neg().String())
		}
		return nil, err
	}
	if !applied {
		return item, nil
	}

	if err := tx.UpdateItemQuantity(ctx, itemID, after); err != nil {
		return nil, fmt.Errorf("failed to update stock for item %d: %w", itemID, err)
	}
	item.Quantity = after
	return item, nil
}

func (l *StockLedger) applyLot(ctx context.Context, tx Tx, lotID int64, delta decimal.Decimal, src Source) (*StockLot, error) {
	lot, err := tx.LockStockLot(ctx, lotID)
	if err != nil {
		return nil, err
	}

	after, applied, err := recordDelta(ctx, tx, TargetStockLot, lotID, lot.Quantity, delta, src)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return nil, fmt.Errorf("%w: stock lot %d has %s remaining, need %s",
				ErrInsufficientStock, lot.ID, lot.Quantity.String(), delta.Neg().String())
		}
		return nil, err
	}
	if !applied {
		return lot, nil
	}

	if err := tx.UpdateStockLotQuantity(ctx, lotID, after); err != nil {
		return nil, fmt.Errorf("failed to update stock lot %d: %w", lotID, err)
	}
	lot.Quantity = after
	return lot, nil
}

// recordDelta checks idempotence and the non-negative invariant, then appends
// the ledger entry. applied is false when the key was already recorded.
func recordDelta(ctx context.Context, tx Tx, target LedgerTarget, targetID int64,
	before, delta decimal.Decimal, src Source) (after decimal.Decimal, applied bool, err error) {

	key := LedgerKey{SourceID: src.ID, Reason: src.Reason, Target: target, TargetID: targetID}
	if _, err := tx.FindLedgerEntry(ctx, key); err == nil {
		return before, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return before, false, fmt.Errorf("failed to check ledger entry %s/%s: %w", src.ID, src.Reason, err)
	}

	after = before.Add(delta)
	if after.IsNegative() {
		return before, false, ErrInsufficientStock
	}

	entry := &LedgerEntry{
		Target:    target,
		TargetID:  targetID,
		Delta:     delta,
		Before:    before,
		After:     after,
		SourceID:  src.ID,
		Reason:    src.Reason,
		Note:      src.Note,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return before, false, err
	}
	return after, true, nil
}
