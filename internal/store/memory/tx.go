package memory

import (
	"context"
	"fmt"

	"billing-engine/internal/core"

	"github.com/shopspring/decimal"
)

// tx stages rows it has locked or created. versions holds the committed
// Version of every locked row; commit fails if any of them moved.
type tx struct {
	s *Store

	items    map[int64]*core.Item
	lots     map[int64]*core.StockLot
	parties  map[int64]*core.Party
	invoices map[int64]*core.Invoice

	versions        map[rowKey]int64
	dirty           map[rowKey]bool
	createdInvoices []int64

	entries []core.LedgerEntry
	keys    map[core.LedgerKey]int
}

var _ core.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		s:        s,
		items:    make(map[int64]*core.Item),
		lots:     make(map[int64]*core.StockLot),
		parties:  make(map[int64]*core.Party),
		invoices: make(map[int64]*core.Invoice),
		versions: make(map[rowKey]int64),
		dirty:    make(map[rowKey]bool),
		keys:     make(map[core.LedgerKey]int),
	}
}

// ── Reads: staged rows shadow committed ones ─────────────────────────────────

func (t *tx) GetItem(ctx context.Context, id int64) (*core.Item, error) {
	if it, ok := t.items[id]; ok {
		return cloneItem(it), nil
	}
	return t.s.GetItem(ctx, id)
}

func (t *tx) GetStockLot(ctx context.Context, id int64) (*core.StockLot, error) {
	if l, ok := t.lots[id]; ok {
		c := *l
		return &c, nil
	}
	return t.s.GetStockLot(ctx, id)
}

func (t *tx) GetParty(ctx context.Context, id int64) (*core.Party, error) {
	if p, ok := t.parties[id]; ok {
		c := *p
		return &c, nil
	}
	return t.s.GetParty(ctx, id)
}

func (t *tx) GetInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	if inv, ok := t.invoices[id]; ok {
		return cloneInvoice(inv), nil
	}
	return t.s.GetInvoice(ctx, id)
}

func (t *tx) ListLedgerEntries(ctx context.Context, target core.LedgerTarget, targetID int64) ([]core.LedgerEntry, error) {
	out, err := t.s.ListLedgerEntries(ctx, target, targetID)
	if err != nil {
		return nil, err
	}
	for _, e := range t.entries {
		if e.Target == target && e.TargetID == targetID {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

// ── Locks ────────────────────────────────────────────────────────────────────

func (t *tx) LockItem(ctx context.Context, id int64) (*core.Item, error) {
	if _, ok := t.items[id]; !ok {
		it, err := t.s.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		t.items[id] = it
		t.versions[rowKey{kindItem, id}] = it.Version
	}
	return cloneItem(t.items[id]), nil
}

func (t *tx) LockStockLot(ctx context.Context, id int64) (*core.StockLot, error) {
	if _, ok := t.lots[id]; !ok {
		l, err := t.s.GetStockLot(ctx, id)
		if err != nil {
			return nil, err
		}
		t.lots[id] = l
		t.versions[rowKey{kindLot, id}] = l.Version
	}
	c := *t.lots[id]
	return &c, nil
}

func (t *tx) LockParty(ctx context.Context, id int64) (*core.Party, error) {
	if _, ok := t.parties[id]; !ok {
		p, err := t.s.GetParty(ctx, id)
		if err != nil {
			return nil, err
		}
		t.parties[id] = p
		t.versions[rowKey{kindParty, id}] = p.Version
	}
	c := *t.parties[id]
	return &c, nil
}

func (t *tx) LockInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	if _, ok := t.invoices[id]; !ok {
		inv, err := t.s.GetInvoice(ctx, id)
		if err != nil {
			return nil, err
		}
		t.invoices[id] = inv
		t.versions[rowKey{kindInvoice, id}] = inv.Version
	}
	return cloneInvoice(t.invoices[id]), nil
}

func (t *tx) LockInvoiceByNumber(ctx context.Context, k core.InvoiceKind, number string) (*core.Invoice, error) {
	for _, id := range t.createdInvoices {
		if inv := t.invoices[id]; inv.Kind == k && inv.Number == number {
			return cloneInvoice(inv), nil
		}
	}
	t.s.mu.RLock()
	id, ok := t.s.numbers[numberKey{k, number}]
	t.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s invoice %q", core.ErrNotFound, k, number)
	}
	return t.LockInvoice(ctx, id)
}

// ── Creates ──────────────────────────────────────────────────────────────────

func (t *tx) CreateItem(_ context.Context, item *core.Item) error {
	item.ID = t.s.allocID(kindItem)
	t.items[item.ID] = cloneItem(item)
	t.dirty[rowKey{kindItem, item.ID}] = true
	return nil
}

func (t *tx) CreateStockLot(_ context.Context, lot *core.StockLot) error {
	lot.ID = t.s.allocID(kindLot)
	c := *lot
	t.lots[lot.ID] = &c
	t.dirty[rowKey{kindLot, lot.ID}] = true
	return nil
}

func (t *tx) CreateParty(_ context.Context, party *core.Party) error {
	party.ID = t.s.allocID(kindParty)
	c := *party
	t.parties[party.ID] = &c
	t.dirty[rowKey{kindParty, party.ID}] = true
	return nil
}

func (t *tx) CreateInvoice(ctx context.Context, inv *core.Invoice) error {
	if inv.Number != "" {
		if _, err := t.LockInvoiceByNumber(ctx, inv.Kind, inv.Number); err == nil {
			return fmt.Errorf("%w: %s %s", core.ErrDuplicateNumber, inv.Kind, inv.Number)
		}
	}
	inv.ID = t.s.allocID(kindInvoice)
	for i := range inv.Lines {
		inv.Lines[i].LineNumber = i + 1
	}
	t.invoices[inv.ID] = cloneInvoice(inv)
	t.dirty[rowKey{kindInvoice, inv.ID}] = true
	t.createdInvoices = append(t.createdInvoices, inv.ID)
	return nil
}

// ── Updates: only rows this tx locked or created ─────────────────────────────

func (t *tx) UpdateItemQuantity(_ context.Context, id int64, quantity decimal.Decimal) error {
	it, ok := t.items[id]
	if !ok {
		return fmt.Errorf("item %d updated without a lock", id)
	}
	it.Quantity = quantity
	t.dirty[rowKey{kindItem, id}] = true
	return nil
}

func (t *tx) UpdateStockLotQuantity(_ context.Context, id int64, quantity decimal.Decimal) error {
	l, ok := t.lots[id]
	if !ok {
		return fmt.Errorf("stock lot %d updated without a lock", id)
	}
	l.Quantity = quantity
	t.dirty[rowKey{kindLot, id}] = true
	return nil
}

func (t *tx) UpdatePartyBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	p, ok := t.parties[id]
	if !ok {
		return fmt.Errorf("party %d updated without a lock", id)
	}
	p.Balance = balance
	t.dirty[rowKey{kindParty, id}] = true
	return nil
}

func (t *tx) UpdateInvoice(_ context.Context, inv *core.Invoice) error {
	cur, ok := t.invoices[inv.ID]
	if !ok {
		return fmt.Errorf("invoice %d updated without a lock", inv.ID)
	}
	next := cloneInvoice(inv)
	next.Version = cur.Version
	next.CreatedAt = cur.CreatedAt
	for i := range next.Lines {
		next.Lines[i].LineNumber = i + 1
	}
	t.invoices[inv.ID] = next
	t.dirty[rowKey{kindInvoice, inv.ID}] = true
	return nil
}

// ── Ledger ───────────────────────────────────────────────────────────────────

func (t *tx) FindLedgerEntry(_ context.Context, key core.LedgerKey) (*core.LedgerEntry, error) {
	if i, ok := t.keys[key]; ok {
		e := cloneEntry(t.entries[i])
		return &e, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if i, ok := t.s.keys[key]; ok {
		e := cloneEntry(t.s.entries[i])
		return &e, nil
	}
	return nil, fmt.Errorf("%w: ledger entry %s/%s", core.ErrNotFound, key.SourceID, key.Reason)
}

func (t *tx) ListLedgerEntriesBySource(_ context.Context, sourceID string) ([]core.LedgerEntry, error) {
	var out []core.LedgerEntry
	t.s.mu.RLock()
	for _, e := range t.s.entries {
		if e.SourceID == sourceID {
			out = append(out, cloneEntry(e))
		}
	}
	t.s.mu.RUnlock()
	for _, e := range t.entries {
		if e.SourceID == sourceID {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (t *tx) InsertLedgerEntry(ctx context.Context, entry *core.LedgerEntry) error {
	key := entry.Key()
	if _, err := t.FindLedgerEntry(ctx, key); err == nil {
		return fmt.Errorf("%w: %s/%s on %s %d", core.ErrDuplicateLedgerEntry, key.SourceID, key.Reason, key.Target, key.TargetID)
	}
	entry.ID = t.s.allocSeq()
	t.keys[key] = len(t.entries)
	t.entries = append(t.entries, cloneEntry(*entry))
	return nil
}
