package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConversionService moves raw stock out of lots into sellable items.
type ConversionService interface {
	// MoveToItems draws the summed target quantity from the lot and credits
	// each target with its share. Replaying a ReferenceID returns the state
	// recorded by the first run without moving stock again.
	MoveToItems(ctx context.Context, req ConversionRequest) (*ConversionResult, error)
	// Convert moves qty from one lot into one existing item.
	Convert(ctx context.Context, lotID, itemID int64, qty decimal.Decimal) (*ConversionResult, error)
}

type conversionService struct {
	store Store
	stock *StockLedger
}

func NewConversionService(store Store) ConversionService {
	return &conversionService{store: store, stock: NewStockLedger()}
}

func (s *conversionService) Convert(ctx context.Context, lotID, itemID int64, qty decimal.Decimal) (*ConversionResult, error) {
	return s.MoveToItems(ctx, ConversionRequest{
		LotID:   lotID,
		Targets: []ConversionTarget{{ItemID: itemID, Quantity: qty}},
	})
}

func (s *conversionService) MoveToItems(ctx context.Context, req ConversionRequest) (*ConversionResult, error) {
	total, err := validateConversion(req)
	if err != nil {
		return nil, err
	}
	ref := req.ReferenceID
	if ref == "" {
		ref = uuid.NewString()
	}
	src := Source{ID: ConversionSourceID(ref), Reason: ReasonConversion}

	var out *ConversionResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		res, err := s.moveTx(ctx, tx, req, total, src)
		if err != nil {
			return err
		}
		res.ReferenceID = ref
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// moveTx locks and draws the lot before any item is touched, so an item is
// never credited unless the lot decrement succeeded.
func (s *conversionService) moveTx(ctx context.Context, tx Tx, req ConversionRequest, total decimal.Decimal, src Source) (*ConversionResult, error) {
	// Holding the lot lock makes the replay check below see any concurrent
	// run of the same reference.
	if _, err := tx.LockStockLot(ctx, req.LotID); err != nil {
		return nil, fmt.Errorf("stock lot %d: %w", req.LotID, err)
	}
	prior, err := tx.ListLedgerEntriesBySource(ctx, src.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check conversion %s: %w", src.ID, err)
	}
	if len(prior) > 0 {
		return replayConversion(ctx, tx, req.LotID, prior)
	}

	lot, err := s.stock.DrawLot(ctx, tx, req.LotID, total, src)
	if err != nil {
		return nil, fmt.Errorf("failed to draw from stock lot %d: %w", req.LotID, err)
	}

	existing := make(map[int64]decimal.Decimal)
	var created []ConversionTarget
	for _, t := range req.Targets {
		if t.NewItem != nil {
			created = append(created, t)
			continue
		}
		existing[t.ItemID] = existing[t.ItemID].Add(t.Quantity)
	}
	ids := make([]int64, 0, len(existing))
	for id := range existing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	res := &ConversionResult{Lot: lot, Moved: total}
	for _, id := range ids {
		item, err := s.stock.Adjust(ctx, tx, id, existing[id], src)
		if err != nil {
			return nil, fmt.Errorf("failed to credit item %d: %w", id, err)
		}
		res.Items = append(res.Items, *item)
	}

	for _, t := range created {
		item := &Item{
			Name:      t.NewItem.Name,
			SKU:       t.NewItem.SKU,
			Unit:      t.NewItem.Unit,
			UnitPrice: t.NewItem.UnitPrice,
			TaxRate:   t.NewItem.TaxRate,
			Quantity:  decimal.Zero,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.CreateItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to create item %q: %w", t.NewItem.Name, err)
		}
		credited, err := s.stock.Adjust(ctx, tx, item.ID, t.Quantity, src)
		if err != nil {
			return nil, fmt.Errorf("failed to credit new item %d: %w", item.ID, err)
		}
		res.Items = append(res.Items, *credited)
	}
	return res, nil
}

// replayConversion rebuilds the result of an already-applied conversion.
func replayConversion(ctx context.Context, tx Tx, lotID int64, prior []LedgerEntry) (*ConversionResult, error) {
	res := &ConversionResult{}
	sort.Slice(prior, func(i, j int) bool { return prior[i].ID < prior[j].ID })
	for _, e := range prior {
		switch e.Target {
		case TargetStockLot:
			if e.TargetID != lotID {
				return nil, fmt.Errorf("%w: reference %s already converted stock lot %d",
					ErrDuplicateLedgerEntry, e.SourceID, e.TargetID)
			}
			lot, err := tx.GetStockLot(ctx, e.TargetID)
			if err != nil {
				return nil, fmt.Errorf("stock lot %d: %w", e.TargetID, err)
			}
			res.Lot = lot
			res.Moved = e.Delta.Neg()
		case TargetItem:
			item, err := tx.GetItem(ctx, e.TargetID)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", e.TargetID, err)
			}
			res.Items = append(res.Items, *item)
		}
	}
	return res, nil
}

func validateConversion(req ConversionRequest) (decimal.Decimal, error) {
	if req.LotID <= 0 {
		return decimal.Zero, fmt.Errorf("%w: stock lot is required", ErrInvalidInput)
	}
	if len(req.Targets) == 0 {
		return decimal.Zero, fmt.Errorf("%w: at least one target item is required", ErrInvalidInput)
	}
	total := decimal.Zero
	for i, t := range req.Targets {
		n := i + 1
		if (t.ItemID > 0) == (t.NewItem != nil) {
			return decimal.Zero, fmt.Errorf("%w: target %d must name exactly one of an existing item or a new item", ErrInvalidInput, n)
		}
		if !t.Quantity.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: target %d quantity must be positive, got %s", ErrInvalidQuantity, n, t.Quantity)
		}
		if t.NewItem != nil {
			if err := validateNewItem(*t.NewItem); err != nil {
				return decimal.Zero, fmt.Errorf("target %d: %w", n, err)
			}
			if !t.NewItem.OpeningQuantity.IsZero() {
				return decimal.Zero, fmt.Errorf("%w: target %d new item takes its stock from the lot, opening quantity must be empty", ErrInvalidInput, n)
			}
		}
		total = total.Add(t.Quantity)
	}
	return total, nil
}

func validateNewItem(n NewItem) error {
	if n.Name == "" {
		return fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}
	if n.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price cannot be negative", ErrInvalidAmount)
	}
	if n.TaxRate != nil && n.TaxRate.IsNegative() {
		return fmt.Errorf("%w: tax rate cannot be negative", ErrInvalidAmount)
	}
	if n.OpeningQuantity.IsNegative() {
		return fmt.Errorf("%w: opening quantity cannot be negative", ErrInvalidQuantity)
	}
	return nil
}
