// Package memory is an in-process core.Store. Transactions stage copies of
// the rows they lock and commit with a compare-and-swap on each row's Version,
// so concurrent writers to the same row conflict and are retried instead of
// losing updates. Rows that no transaction shares never contend.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"billing-engine/internal/core"

	"github.com/shopspring/decimal"
)

type kind uint8

const (
	kindItem kind = iota
	kindLot
	kindParty
	kindInvoice
)

type rowKey struct {
	kind kind
	id   int64
}

type numberKey struct {
	kind   core.InvoiceKind
	number string
}

// Store keeps committed state. mu guards every map and is held only while a
// transaction reads a row or commits; never across caller code.
type Store struct {
	mu       sync.RWMutex
	items    map[int64]*core.Item
	lots     map[int64]*core.StockLot
	parties  map[int64]*core.Party
	invoices map[int64]*core.Invoice
	numbers  map[numberKey]int64
	entries  []core.LedgerEntry
	keys     map[core.LedgerKey]int // index into entries
	nextID   map[kind]int64
	nextSeq  int64

	policy core.RetryPolicy
}

var _ core.Store = (*Store)(nil)

// New returns an empty store. Transactions that keep conflicting are retried
// per policy and then fail with core.ErrContention.
func New(policy core.RetryPolicy) *Store {
	return &Store{
		items:    make(map[int64]*core.Item),
		lots:     make(map[int64]*core.StockLot),
		parties:  make(map[int64]*core.Party),
		invoices: make(map[int64]*core.Invoice),
		numbers:  make(map[numberKey]int64),
		keys:     make(map[core.LedgerKey]int),
		nextID:   make(map[kind]int64),
		policy:   policy,
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	return core.RunWithRetry(ctx, s.policy, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := newTx(s)
		if err := fn(ctx, t); err != nil {
			return err
		}
		// A cancelled caller must not see its work committed.
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.commit(t)
	})
}

func (s *Store) allocID(k kind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID[k]++
	return s.nextID[k]
}

func (s *Store) allocSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	return s.nextSeq
}

// ── Committed reads ──────────────────────────────────────────────────────────

func (s *Store) GetItem(_ context.Context, id int64) (*core.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: item %d", core.ErrNotFound, id)
	}
	return cloneItem(it), nil
}

func (s *Store) GetStockLot(_ context.Context, id int64) (*core.StockLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lots[id]
	if !ok {
		return nil, fmt.Errorf("%w: stock lot %d", core.ErrNotFound, id)
	}
	c := *l
	return &c, nil
}

func (s *Store) GetParty(_ context.Context, id int64) (*core.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parties[id]
	if !ok {
		return nil, fmt.Errorf("%w: party %d", core.ErrNotFound, id)
	}
	c := *p
	return &c, nil
}

func (s *Store) GetInvoice(_ context.Context, id int64) (*core.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("%w: invoice %d", core.ErrNotFound, id)
	}
	return cloneInvoice(inv), nil
}

func (s *Store) ListLedgerEntries(_ context.Context, target core.LedgerTarget, targetID int64) ([]core.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.LedgerEntry
	for _, e := range s.entries {
		if e.Target == target && e.TargetID == targetID {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

// ── Commit ───────────────────────────────────────────────────────────────────

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range t.versions {
		if cur, ok := s.versionOf(k); !ok || cur != v {
			return fmt.Errorf("%w: row %d/%d changed since it was locked", core.ErrConflict, k.kind, k.id)
		}
	}
	for _, e := range t.entries {
		if _, ok := s.keys[e.Key()]; ok {
			return fmt.Errorf("%w: ledger entry %s/%s committed concurrently", core.ErrConflict, e.SourceID, e.Reason)
		}
	}
	for _, id := range t.createdInvoices {
		inv := t.invoices[id]
		if inv.Number == "" {
			continue
		}
		if _, ok := s.numbers[numberKey{inv.Kind, inv.Number}]; ok {
			return fmt.Errorf("%w: invoice number %s committed concurrently", core.ErrConflict, inv.Number)
		}
	}

	now := time.Now().UTC()
	for id, it := range t.items {
		if t.dirty[rowKey{kindItem, id}] {
			it.Version++
			it.UpdatedAt = now
			s.items[id] = cloneItem(it)
		}
	}
	for id, l := range t.lots {
		if t.dirty[rowKey{kindLot, id}] {
			l.Version++
			l.UpdatedAt = now
			c := *l
			s.lots[id] = &c
		}
	}
	for id, p := range t.parties {
		if t.dirty[rowKey{kindParty, id}] {
			p.Version++
			p.UpdatedAt = now
			c := *p
			s.parties[id] = &c
		}
	}
	for id, inv := range t.invoices {
		if t.dirty[rowKey{kindInvoice, id}] {
			inv.Version++
			s.invoices[id] = cloneInvoice(inv)
			if inv.Number != "" {
				s.numbers[numberKey{inv.Kind, inv.Number}] = id
			}
		}
	}

	for _, e := range t.entries {
		s.keys[e.Key()] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *Store) versionOf(k rowKey) (int64, bool) {
	switch k.kind {
	case kindItem:
		if r, ok := s.items[k.id]; ok {
			return r.Version, true
		}
	case kindLot:
		if r, ok := s.lots[k.id]; ok {
			return r.Version, true
		}
	case kindParty:
		if r, ok := s.parties[k.id]; ok {
			return r.Version, true
		}
	case kindInvoice:
		if r, ok := s.invoices[k.id]; ok {
			return r.Version, true
		}
	}
	return 0, false
}

// ── Copies ───────────────────────────────────────────────────────────────────

func cloneDecimalPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func cloneItem(it *core.Item) *core.Item {
	c := *it
	c.TaxRate = cloneDecimalPtr(it.TaxRate)
	return &c
}

func cloneInvoice(inv *core.Invoice) *core.Invoice {
	c := *inv
	if inv.GSTType != nil {
		g := *inv.GSTType
		c.GSTType = &g
	}
	if inv.PostedAt != nil {
		t := *inv.PostedAt
		c.PostedAt = &t
	}
	if inv.VoidedAt != nil {
		t := *inv.VoidedAt
		c.VoidedAt = &t
	}
	c.Lines = make([]core.InvoiceLine, len(inv.Lines))
	for i, l := range inv.Lines {
		l.UnitPrice = cloneDecimalPtr(l.UnitPrice)
		l.TaxRate = cloneDecimalPtr(l.TaxRate)
		c.Lines[i] = l
	}
	return &c
}

func cloneEntry(e core.LedgerEntry) core.LedgerEntry {
	if e.ReversesID != nil {
		r := *e.ReversesID
		e.ReversesID = &r
	}
	return e
}
