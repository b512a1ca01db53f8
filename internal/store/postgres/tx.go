package postgres

import (
	"context"
	"errors"
	"fmt"

	"billing-engine/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type tx struct {
	q querier
}

var _ core.Tx = (*tx)(nil)

func (t *tx) GetItem(ctx context.Context, id int64) (*core.Item, error) {
	return getItem(ctx, t.q, id, false)
}

func (t *tx) GetStockLot(ctx context.Context, id int64) (*core.StockLot, error) {
	return getStockLot(ctx, t.q, id, false)
}

func (t *tx) GetParty(ctx context.Context, id int64) (*core.Party, error) {
	return getParty(ctx, t.q, id, false)
}

func (t *tx) GetInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	return getInvoice(ctx, t.q, "id = $1", false, id)
}

func (t *tx) ListLedgerEntries(ctx context.Context, target core.LedgerTarget, targetID int64) ([]core.LedgerEntry, error) {
	return listLedgerEntries(ctx, t.q, "target = $1 AND target_id = $2", string(target), targetID)
}

// ── Row locks ────────────────────────────────────────────────────────────────

func (t *tx) LockItem(ctx context.Context, id int64) (*core.Item, error) {
	return getItem(ctx, t.q, id, true)
}

func (t *tx) LockStockLot(ctx context.Context, id int64) (*core.StockLot, error) {
	return getStockLot(ctx, t.q, id, true)
}

func (t *tx) LockParty(ctx context.Context, id int64) (*core.Party, error) {
	return getParty(ctx, t.q, id, true)
}

func (t *tx) LockInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	return getInvoice(ctx, t.q, "id = $1", true, id)
}

func (t *tx) LockInvoiceByNumber(ctx context.Context, kind core.InvoiceKind, number string) (*core.Invoice, error) {
	return getInvoice(ctx, t.q, "kind = $1 AND number = $2", true, string(kind), number)
}

// ── Creates ──────────────────────────────────────────────────────────────────

func (t *tx) CreateItem(ctx context.Context, item *core.Item) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO items (name, sku, unit, unit_price, tax_rate, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, version, created_at, updated_at
	`, item.Name, item.SKU, item.Unit, item.UnitPrice, nullableDecimal(item.TaxRate), item.Quantity).Scan(
		&item.ID, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func (t *tx) CreateStockLot(ctx context.Context, lot *core.StockLot) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO stock_lots (source_ref, quantity, unit_cost)
		VALUES ($1, $2, $3)
		RETURNING id, version, created_at, updated_at
	`, lot.SourceRef, lot.Quantity, lot.UnitCost).Scan(&lot.ID, &lot.Version, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert stock lot: %w", err)
	}
	return nil
}

func (t *tx) CreateParty(ctx context.Context, party *core.Party) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO parties (name, role, balance)
		VALUES ($1, $2, $3)
		RETURNING id, version, created_at, updated_at
	`, party.Name, string(party.Role), party.Balance).Scan(&party.ID, &party.Version, &party.CreatedAt, &party.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert party: %w", err)
	}
	return nil
}

func (t *tx) CreateInvoice(ctx context.Context, inv *core.Invoice) error {
	var gstType *string
	if inv.GSTType != nil {
		g := string(*inv.GSTType)
		gstType = &g
	}
	err := t.q.QueryRow(ctx, `
		INSERT INTO invoices (number, kind, party_id, payment_mode, tax_mode, gst_type,
			subtotal, tax_amount, grand_total, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, version, created_at
	`, nilIfEmpty(inv.Number), string(inv.Kind), inv.PartyID, inv.PaymentMode, string(inv.TaxMode), gstType,
		inv.Subtotal, inv.TaxAmount, inv.GrandTotal, string(inv.Status)).Scan(&inv.ID, &inv.Version, &inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "invoices_kind_number_key") {
			return fmt.Errorf("%w: %s %s", core.ErrDuplicateNumber, inv.Kind, inv.Number)
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return insertInvoiceLines(ctx, t.q, inv)
}

// ── Updates ──────────────────────────────────────────────────────────────────

func (t *tx) updateOne(ctx context.Context, what string, id int64, sql string, args ...any) error {
	tag, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", what, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %d", core.ErrNotFound, what, id)
	}
	return nil
}

func (t *tx) UpdateItemQuantity(ctx context.Context, id int64, quantity decimal.Decimal) error {
	return t.updateOne(ctx, "item", id,
		"UPDATE items SET quantity = $1, version = version + 1, updated_at = NOW() WHERE id = $2", quantity, id)
}

func (t *tx) UpdateStockLotQuantity(ctx context.Context, id int64, quantity decimal.Decimal) error {
	return t.updateOne(ctx, "stock lot", id,
		"UPDATE stock_lots SET quantity = $1, version = version + 1, updated_at = NOW() WHERE id = $2", quantity, id)
}

func (t *tx) UpdatePartyBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	return t.updateOne(ctx, "party", id,
		"UPDATE parties SET balance = $1, version = version + 1, updated_at = NOW() WHERE id = $2", balance, id)
}

func (t *tx) UpdateInvoice(ctx context.Context, inv *core.Invoice) error {
	err := t.updateOne(ctx, "invoice", inv.ID, `
		UPDATE invoices
		SET payment_mode = $1, subtotal = $2, tax_amount = $3, grand_total = $4,
		    status = $5, posted_at = $6, voided_at = $7, version = version + 1
		WHERE id = $8
	`, inv.PaymentMode, inv.Subtotal, inv.TaxAmount, inv.GrandTotal, string(inv.Status), inv.PostedAt, inv.VoidedAt, inv.ID)
	if err != nil {
		return err
	}
	if _, err := t.q.Exec(ctx, "DELETE FROM invoice_lines WHERE invoice_id = $1", inv.ID); err != nil {
		return fmt.Errorf("failed to clear lines of invoice %d: %w", inv.ID, err)
	}
	return insertInvoiceLines(ctx, t.q, inv)
}

// ── Ledger ───────────────────────────────────────────────────────────────────

func (t *tx) FindLedgerEntry(ctx context.Context, key core.LedgerKey) (*core.LedgerEntry, error) {
	e, err := scanLedgerEntry(t.q.QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE source_id = $1 AND reason = $2 AND target = $3 AND target_id = $4
	`, key.SourceID, string(key.Reason), string(key.Target), key.TargetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: ledger entry %s/%s", core.ErrNotFound, key.SourceID, key.Reason)
		}
		return nil, fmt.Errorf("failed to fetch ledger entry %s/%s: %w", key.SourceID, key.Reason, err)
	}
	return e, nil
}

func (t *tx) ListLedgerEntriesBySource(ctx context.Context, sourceID string) ([]core.LedgerEntry, error) {
	return listLedgerEntries(ctx, t.q, "source_id = $1", sourceID)
}

func (t *tx) InsertLedgerEntry(ctx context.Context, entry *core.LedgerEntry) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO ledger_entries (target, target_id, delta, before_qty, after_qty, source_id, reason, note, reverses_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, string(entry.Target), entry.TargetID, entry.Delta, entry.Before, entry.After,
		entry.SourceID, string(entry.Reason), entry.Note, entry.ReversesID).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "ledger_entries_key") {
			return fmt.Errorf("%w: %s/%s on %s %d", core.ErrDuplicateLedgerEntry,
				entry.SourceID, entry.Reason, entry.Target, entry.TargetID)
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}
