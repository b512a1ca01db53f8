package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"billing-engine/internal/money"

	"github.com/shopspring/decimal"
)

// InvoiceEngine manages the invoice lifecycle and is the only caller that
// combines stock and balance effects for a document.
type InvoiceEngine interface {
	// Drafts
	CreateDraft(ctx context.Context, draft InvoiceDraft) (*Invoice, error)
	// UpdateDraftLines replaces the lines of a DRAFT invoice.
	UpdateDraftLines(ctx context.Context, id int64, lines []InvoiceLineInput) (*Invoice, error)
	// Quote prices a draft against the catalog without writing anything.
	Quote(ctx context.Context, draft InvoiceDraft) (*Invoice, error)

	// Post transitions DRAFT → POSTED. Posting a POSTED invoice returns it unchanged.
	Post(ctx context.Context, id int64) (*Invoice, error)
	// PostDraft creates and posts in one transaction. A draft whose Number
	// matches an existing invoice of the same kind and content resolves to
	// that invoice; differing content is ErrDuplicateNumber.
	PostDraft(ctx context.Context, draft InvoiceDraft) (*Invoice, error)
	// Void transitions POSTED → VOID, reversing every ledger effect of the posting.
	Void(ctx context.Context, id int64) (*Invoice, error)

	Get(ctx context.Context, id int64) (*Invoice, error)
}

type invoiceEngine struct {
	store   Store
	catalog Catalog
	guard   Guard
	stock   *StockLedger
	balance *BalanceLedger
}

// NewInvoiceEngine wires the engine to a store. A nil catalog resolves prices
// from the items themselves; a nil guard disables cross-instance guarding.
func NewInvoiceEngine(store Store, catalog Catalog, guard Guard) InvoiceEngine {
	if catalog == nil {
		catalog = NewItemCatalog()
	}
	if guard == nil {
		guard = nopGuard{}
	}
	return &invoiceEngine{
		store:   store,
		catalog: catalog,
		guard:   guard,
		stock:   NewStockLedger(),
		balance: NewBalanceLedger(),
	}
}

type nopGuard struct{}

func (nopGuard) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

// ── Drafts ───────────────────────────────────────────────────────────────────

func (e *invoiceEngine) CreateDraft(ctx context.Context, draft InvoiceDraft) (*Invoice, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	var out *Invoice
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if draft.Number != "" {
			existing, err := tx.LockInvoiceByNumber(ctx, draft.Kind, draft.Number)
			if err == nil {
				return fmt.Errorf("%w: %s %s is invoice %d", ErrDuplicateNumber, draft.Kind, draft.Number, existing.ID)
			}
			if !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("failed to check invoice number %s: %w", draft.Number, err)
			}
		}
		inv, err := e.createDraftTx(ctx, tx, draft)
		if err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *invoiceEngine) createDraftTx(ctx context.Context, tx Tx, draft InvoiceDraft) (*Invoice, error) {
	if _, err := tx.GetParty(ctx, draft.PartyID); err != nil {
		return nil, fmt.Errorf("party %d: %w", draft.PartyID, err)
	}
	if err := checkItemsExist(ctx, tx, draft.Lines); err != nil {
		return nil, err
	}

	inv := &Invoice{
		Number:      draft.Number,
		Kind:        draft.Kind,
		PartyID:     draft.PartyID,
		PaymentMode: draft.PaymentMode,
		TaxMode:     draft.TaxMode,
		GSTType:     draft.GSTType,
		Lines:       linesFromInput(draft.Lines),
		Status:      StatusDraft,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}
	return inv, nil
}

func (e *invoiceEngine) UpdateDraftLines(ctx context.Context, id int64, lines []InvoiceLineInput) (*Invoice, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}

	var out *Invoice
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return fmt.Errorf("invoice %d: %w", id, err)
		}
		if inv.Status != StatusDraft {
			return fmt.Errorf("%w: invoice %d is %s", ErrInvoiceNotDraft, id, inv.Status)
		}
		if err := checkItemsExist(ctx, tx, lines); err != nil {
			return err
		}
		inv.Lines = linesFromInput(lines)
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("failed to update invoice %d: %w", id, err)
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *invoiceEngine) Quote(ctx context.Context, draft InvoiceDraft) (*Invoice, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	if _, err := e.store.GetParty(ctx, draft.PartyID); err != nil {
		return nil, fmt.Errorf("party %d: %w", draft.PartyID, err)
	}
	inv := &Invoice{
		Number:      draft.Number,
		Kind:        draft.Kind,
		PartyID:     draft.PartyID,
		PaymentMode: draft.PaymentMode,
		TaxMode:     draft.TaxMode,
		GSTType:     draft.GSTType,
		Lines:       linesFromInput(draft.Lines),
		Status:      StatusDraft,
	}
	if err := e.price(ctx, e.store, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ── Posting ──────────────────────────────────────────────────────────────────

func (e *invoiceEngine) Post(ctx context.Context, id int64) (*Invoice, error) {
	release, err := e.guard.Acquire(ctx, InvoiceSourceID(id))
	if err != nil {
		return nil, err
	}
	defer release()

	var out *Invoice
	err = e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return fmt.Errorf("invoice %d: %w", id, err)
		}
		if err := e.postTx(ctx, tx, inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *invoiceEngine) PostDraft(ctx context.Context, draft InvoiceDraft) (*Invoice, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	if draft.Number != "" {
		release, err := e.guard.Acquire(ctx, fmt.Sprintf("invoice-number:%s:%s", draft.Kind, draft.Number))
		if err != nil {
			return nil, err
		}
		defer release()
	}

	var out *Invoice
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var inv *Invoice
		if draft.Number != "" {
			existing, err := tx.LockInvoiceByNumber(ctx, draft.Kind, draft.Number)
			switch {
			case err == nil:
				if !matchesDraft(existing, draft) {
					return fmt.Errorf("%w: %s %s is invoice %d with different content",
						ErrDuplicateNumber, draft.Kind, draft.Number, existing.ID)
				}
				inv = existing
			case !errors.Is(err, ErrNotFound):
				return fmt.Errorf("failed to check invoice number %s: %w", draft.Number, err)
			}
		}
		if inv == nil {
			created, err := e.createDraftTx(ctx, tx, draft)
			if err != nil {
				// A concurrent request created the same number first; the
				// retry will find and return it.
				if errors.Is(err, ErrDuplicateNumber) {
					return fmt.Errorf("%w: %v", ErrConflict, err)
				}
				return err
			}
			inv = created
		}
		if err := e.postTx(ctx, tx, inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// postTx applies the posting inside tx. inv must already be locked.
// Lock order: the invoice, its items by ascending id, then the party.
func (e *invoiceEngine) postTx(ctx context.Context, tx Tx, inv *Invoice) error {
	switch inv.Status {
	case StatusPosted:
		return nil
	case StatusVoid:
		return fmt.Errorf("%w: invoice %d cannot be reposted", ErrInvoiceVoided, inv.ID)
	}

	if err := e.price(ctx, tx, inv); err != nil {
		return err
	}
	if _, err := tx.GetParty(ctx, inv.PartyID); err != nil {
		return fmt.Errorf("party %d: %w", inv.PartyID, err)
	}

	src := Source{ID: InvoiceSourceID(inv.ID), Reason: inv.Kind.stockReason()}
	for _, m := range aggregateByItem(inv.Lines) {
		var err error
		if inv.Kind.removesStock() {
			_, err = e.stock.Reserve(ctx, tx, m.itemID, m.quantity, src)
		} else {
			_, err = e.stock.Adjust(ctx, tx, m.itemID, m.quantity, src)
		}
		if err != nil {
			return fmt.Errorf("failed to post invoice %d: %w", inv.ID, err)
		}
	}

	signed := inv.Kind.balanceSign().Mul(inv.GrandTotal)
	if _, err := e.balance.ApplyInvoiceEffect(ctx, tx, inv.PartyID, signed, src.ID); err != nil {
		return fmt.Errorf("failed to post invoice %d: %w", inv.ID, err)
	}

	now := time.Now().UTC()
	inv.Status = StatusPosted
	inv.PostedAt = &now
	if err := tx.UpdateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("failed to mark invoice %d posted: %w", inv.ID, err)
	}
	return nil
}

// ── Void ─────────────────────────────────────────────────────────────────────

func (e *invoiceEngine) Void(ctx context.Context, id int64) (*Invoice, error) {
	release, err := e.guard.Acquire(ctx, InvoiceSourceID(id))
	if err != nil {
		return nil, err
	}
	defer release()

	var out *Invoice
	err = e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return fmt.Errorf("invoice %d: %w", id, err)
		}
		switch inv.Status {
		case StatusDraft:
			return fmt.Errorf("%w: invoice %d is still a draft", ErrInvoiceNotPosted, id)
		case StatusVoid:
			return fmt.Errorf("%w: invoice %d", ErrAlreadyVoided, id)
		}

		sourceID := InvoiceSourceID(inv.ID)
		entries, err := tx.ListLedgerEntriesBySource(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("failed to load ledger entries for invoice %d: %w", id, err)
		}
		stockReason := inv.Kind.stockReason()
		var posted []LedgerEntry
		for _, le := range entries {
			if le.Target == TargetItem && le.Reason == stockReason {
				posted = append(posted, le)
			}
		}
		sort.Slice(posted, func(i, j int) bool { return posted[i].TargetID < posted[j].TargetID })

		src := Source{ID: sourceID, Reason: ReasonInvoiceVoid}
		for _, le := range posted {
			if le.Delta.IsNegative() {
				_, err = e.stock.Release(ctx, tx, le.TargetID, le.Delta.Neg(), src)
			} else {
				_, err = e.stock.Adjust(ctx, tx, le.TargetID, le.Delta.Neg(), src)
			}
			if err != nil {
				return fmt.Errorf("failed to void invoice %d: %w", id, err)
			}
		}

		if _, err := e.balance.Void(ctx, tx, inv.PartyID, sourceID); err != nil {
			return fmt.Errorf("failed to void invoice %d: %w", id, err)
		}

		now := time.Now().UTC()
		inv.Status = StatusVoid
		inv.VoidedAt = &now
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("failed to mark invoice %d void: %w", id, err)
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *invoiceEngine) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("invoice %d: %w", id, err)
	}
	return inv, nil
}

// ── Pricing ──────────────────────────────────────────────────────────────────

// price freezes catalog prices and rates into the lines and computes totals
// under the invoice's effective tax mode. Only the final tax and grand total
// are rounded.
func (e *invoiceEngine) price(ctx context.Context, r Reader, inv *Invoice) error {
	mode := inv.effectiveTaxMode()
	taxed := make([]money.TaxedAmount, 0, len(inv.Lines))

	for i := range inv.Lines {
		line := &inv.Lines[i]
		entry, err := e.catalog.Resolve(ctx, r, line.ItemID)
		if err != nil {
			return err
		}
		if line.UnitPrice == nil {
			price := entry.UnitPrice
			line.UnitPrice = &price
		}
		if line.TaxRate == nil && entry.TaxRate != nil {
			rate := *entry.TaxRate
			line.TaxRate = &rate
		}

		total, err := money.LineTotal(line.Quantity, *line.UnitPrice, line.Discount)
		if err != nil {
			return fmt.Errorf("line %d: %w", line.LineNumber, err)
		}

		rate := decimal.Zero
		if line.TaxRate != nil {
			rate = *line.TaxRate
		} else if inv.GSTType != nil {
			return fmt.Errorf("%w: line %d (item %d) has no tax rate but gst type %s is set",
				ErrInconsistentTaxConfig, line.LineNumber, line.ItemID, *inv.GSTType)
		}

		tax, err := money.TaxPortion(total, rate, mode)
		if err != nil {
			return fmt.Errorf("line %d: %w", line.LineNumber, err)
		}
		line.LineTotal = total
		line.LineTax = tax
		taxed = append(taxed, money.TaxedAmount{Amount: total, Rate: rate})
	}

	b, err := money.Summarize(taxed, mode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistentTaxConfig, err)
	}
	inv.Subtotal = b.Base
	inv.TaxAmount = b.Tax
	inv.GrandTotal = b.Total
	return nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func validateDraft(d InvoiceDraft) error {
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInvoice, d.Kind)
	}
	if d.PartyID <= 0 {
		return fmt.Errorf("%w: party is required", ErrInvalidInvoice)
	}
	if !d.TaxMode.Valid() {
		return fmt.Errorf("%w: tax mode %q", ErrInconsistentTaxConfig, d.TaxMode)
	}
	if d.GSTType != nil && !d.GSTType.Valid() {
		return fmt.Errorf("%w: gst type %q", ErrInconsistentTaxConfig, *d.GSTType)
	}
	return validateLines(d.Lines)
}

func validateLines(lines []InvoiceLineInput) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrInvalidInvoice)
	}
	for i, l := range lines {
		n := i + 1
		if l.ItemID <= 0 {
			return fmt.Errorf("%w: line %d has no item", ErrInvalidInvoice, n)
		}
		if !l.Quantity.IsPositive() {
			return fmt.Errorf("%w: line %d quantity must be positive, got %s", ErrInvalidQuantity, n, l.Quantity)
		}
		if (l.UnitPrice != nil && l.UnitPrice.IsNegative()) || l.Discount.IsNegative() {
			return fmt.Errorf("%w: line %d price and discount cannot be negative", ErrInvalidAmount, n)
		}
		if l.TaxRate != nil && l.TaxRate.IsNegative() {
			return fmt.Errorf("%w: line %d tax rate cannot be negative", ErrInvalidAmount, n)
		}
	}
	return nil
}

func checkItemsExist(ctx context.Context, r Reader, lines []InvoiceLineInput) error {
	for i, l := range lines {
		if _, err := r.GetItem(ctx, l.ItemID); err != nil {
			return fmt.Errorf("line %d item %d: %w", i+1, l.ItemID, err)
		}
	}
	return nil
}

// matchesDraft reports whether inv carries the same content as d, so that a
// numbered PostDraft is a retry rather than a new document. Once inv is
// posted, an unset price or rate in d accepts the value frozen at posting.
func matchesDraft(inv *Invoice, d InvoiceDraft) bool {
	if inv.PartyID != d.PartyID || inv.PaymentMode != d.PaymentMode || inv.TaxMode != d.TaxMode {
		return false
	}
	if (inv.GSTType == nil) != (d.GSTType == nil) || (inv.GSTType != nil && *inv.GSTType != *d.GSTType) {
		return false
	}
	if len(inv.Lines) != len(d.Lines) {
		return false
	}
	frozen := inv.Status != StatusDraft
	for i, in := range d.Lines {
		l := inv.Lines[i]
		if l.ItemID != in.ItemID || !l.Quantity.Equal(in.Quantity) || !l.Discount.Equal(in.Discount) {
			return false
		}
		if !sameOptional(l.UnitPrice, in.UnitPrice, frozen) || !sameOptional(l.TaxRate, in.TaxRate, frozen) {
			return false
		}
	}
	return true
}

func sameOptional(stored, requested *decimal.Decimal, frozen bool) bool {
	switch {
	case requested == nil:
		return stored == nil || frozen
	case stored == nil:
		return false
	}
	return stored.Equal(*requested)
}

type itemQuantity struct {
	itemID   int64
	quantity decimal.Decimal
}

// aggregateByItem merges lines for the same item and sorts by item id, which
// is the order stock rows are locked in.
func aggregateByItem(lines []InvoiceLine) []itemQuantity {
	totals := make(map[int64]decimal.Decimal, len(lines))
	for _, l := range lines {
		totals[l.ItemID] = totals[l.ItemID].Add(l.Quantity)
	}
	out := make([]itemQuantity, 0, len(totals))
	for id, qty := range totals {
		out = append(out, itemQuantity{itemID: id, quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].itemID < out[j].itemID })
	return out
}
