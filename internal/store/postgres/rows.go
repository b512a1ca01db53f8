package postgres

import (
	"context"
	"fmt"

	"billing-engine/internal/core"
	"billing-engine/internal/money"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so reads are shared
// between the store and its transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func nullableDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ── Items ────────────────────────────────────────────────────────────────────

const itemColumns = `id, name, sku, unit, unit_price, tax_rate, quantity, version, created_at, updated_at`

func scanItem(row pgx.Row) (*core.Item, error) {
	var it core.Item
	var rate decimal.NullDecimal
	if err := row.Scan(&it.ID, &it.Name, &it.SKU, &it.Unit, &it.UnitPrice, &rate,
		&it.Quantity, &it.Version, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.TaxRate = decimalPtr(rate)
	return &it, nil
}

func getItem(ctx context.Context, q querier, id int64, forUpdate bool) (*core.Item, error) {
	it, err := scanItem(q.QueryRow(ctx, "SELECT "+itemColumns+" FROM items WHERE id = $1"+lockClause(forUpdate), id))
	if err != nil {
		return nil, notFound(err, "item", id)
	}
	return it, nil
}

// ── Stock lots ───────────────────────────────────────────────────────────────

const lotColumns = `id, source_ref, quantity, unit_cost, version, created_at, updated_at`

func getStockLot(ctx context.Context, q querier, id int64, forUpdate bool) (*core.StockLot, error) {
	var l core.StockLot
	err := q.QueryRow(ctx, "SELECT "+lotColumns+" FROM stock_lots WHERE id = $1"+lockClause(forUpdate), id).Scan(
		&l.ID, &l.SourceRef, &l.Quantity, &l.UnitCost, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "stock lot", id)
	}
	return &l, nil
}

// ── Parties ──────────────────────────────────────────────────────────────────

const partyColumns = `id, name, role, balance, version, created_at, updated_at`

func getParty(ctx context.Context, q querier, id int64, forUpdate bool) (*core.Party, error) {
	var p core.Party
	var role string
	err := q.QueryRow(ctx, "SELECT "+partyColumns+" FROM parties WHERE id = $1"+lockClause(forUpdate), id).Scan(
		&p.ID, &p.Name, &role, &p.Balance, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "party", id)
	}
	p.Role = core.PartyRole(role)
	return &p, nil
}

// ── Invoices ─────────────────────────────────────────────────────────────────

const invoiceColumns = `id, number, kind, party_id, payment_mode, tax_mode, gst_type,
	subtotal, tax_amount, grand_total, status, version, created_at, posted_at, voided_at`

// getInvoice loads one invoice matching where (with args) and its lines.
func getInvoice(ctx context.Context, q querier, where string, forUpdate bool, args ...any) (*core.Invoice, error) {
	var inv core.Invoice
	var number, gstType *string
	var kind, taxMode, status string
	err := q.QueryRow(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE "+where+lockClause(forUpdate), args...).Scan(
		&inv.ID, &number, &kind, &inv.PartyID, &inv.PaymentMode, &taxMode, &gstType,
		&inv.Subtotal, &inv.TaxAmount, &inv.GrandTotal, &status, &inv.Version,
		&inv.CreatedAt, &inv.PostedAt, &inv.VoidedAt,
	)
	if err != nil {
		return nil, notFound(err, "invoice", args)
	}
	if number != nil {
		inv.Number = *number
	}
	inv.Kind = core.InvoiceKind(kind)
	inv.TaxMode = money.TaxMode(taxMode)
	inv.Status = core.InvoiceStatus(status)
	if gstType != nil {
		g := money.TaxMode(*gstType)
		inv.GSTType = &g
	}

	rows, err := q.Query(ctx, `
		SELECT line_number, item_id, quantity, unit_price, discount, tax_rate, line_total, line_tax
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY line_number
	`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines for invoice %d: %w", inv.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l core.InvoiceLine
		var price, rate decimal.NullDecimal
		if err := rows.Scan(&l.LineNumber, &l.ItemID, &l.Quantity, &price, &l.Discount,
			&rate, &l.LineTotal, &l.LineTax); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		l.UnitPrice = decimalPtr(price)
		l.TaxRate = decimalPtr(rate)
		inv.Lines = append(inv.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lines for invoice %d: %w", inv.ID, err)
	}
	return &inv, nil
}

func insertInvoiceLines(ctx context.Context, q querier, inv *core.Invoice) error {
	for i := range inv.Lines {
		l := &inv.Lines[i]
		l.LineNumber = i + 1
		_, err := q.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, line_number, item_id, quantity, unit_price, discount, tax_rate, line_total, line_tax)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, inv.ID, l.LineNumber, l.ItemID, l.Quantity, nullableDecimal(l.UnitPrice), l.Discount, nullableDecimal(l.TaxRate), l.LineTotal, l.LineTax)
		if err != nil {
			return fmt.Errorf("failed to insert line %d of invoice %d: %w", l.LineNumber, inv.ID, err)
		}
	}
	return nil
}

// ── Ledger entries ───────────────────────────────────────────────────────────

const ledgerColumns = `id, target, target_id, delta, before_qty, after_qty, source_id, reason, note, reverses_id, created_at`

func scanLedgerEntry(row pgx.Row) (*core.LedgerEntry, error) {
	var e core.LedgerEntry
	var target, reason string
	if err := row.Scan(&e.ID, &target, &e.TargetID, &e.Delta, &e.Before, &e.After,
		&e.SourceID, &reason, &e.Note, &e.ReversesID, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Target = core.LedgerTarget(target)
	e.Reason = core.Reason(reason)
	return &e, nil
}

func listLedgerEntries(ctx context.Context, q querier, where string, args ...any) ([]core.LedgerEntry, error) {
	rows, err := q.Query(ctx, "SELECT "+ledgerColumns+" FROM ledger_entries WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []core.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}
	return entries, nil
}
