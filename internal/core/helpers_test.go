package core_test

import (
	"context"
	"testing"
	"time"

	"billing-engine/internal/core"
	"billing-engine/internal/money"
	"billing-engine/internal/store/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// patientRetry lets heavily contended tests converge instead of surfacing
// ErrContention.
var patientRetry = core.RetryPolicy{MaxAttempts: 500, BaseDelay: 50 * time.Microsecond}

type fixture struct {
	store       *memory.Store
	inventory   core.InventoryService
	payments    core.PaymentService
	invoices    core.InvoiceEngine
	conversions core.ConversionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New(patientRetry)
	return &fixture{
		store:       s,
		inventory:   core.NewInventoryService(s),
		payments:    core.NewPaymentService(s),
		invoices:    core.NewInvoiceEngine(s, nil, nil),
		conversions: core.NewConversionService(s),
	}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func rate(s string) *decimal.Decimal { return ptr(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got.String())
}

func (f *fixture) item(t *testing.T, price, qty string, taxRate *decimal.Decimal) *core.Item {
	t.Helper()
	item, err := f.inventory.CreateItem(context.Background(), core.NewItem{
		Name:            "Item " + price,
		SKU:             "SKU-" + price,
		Unit:            "pcs",
		UnitPrice:       d(price),
		TaxRate:         taxRate,
		OpeningQuantity: d(qty),
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) party(t *testing.T, role core.PartyRole) *core.Party {
	t.Helper()
	p, err := f.payments.CreateParty(context.Background(), core.NewParty{Name: string(role) + " A", Role: role})
	require.NoError(t, err)
	return p
}

func (f *fixture) quantity(t *testing.T, itemID int64) decimal.Decimal {
	t.Helper()
	item, err := f.store.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	return item.Quantity
}

func (f *fixture) lotQuantity(t *testing.T, lotID int64) decimal.Decimal {
	t.Helper()
	lot, err := f.store.GetStockLot(context.Background(), lotID)
	require.NoError(t, err)
	return lot.Quantity
}

func (f *fixture) balance(t *testing.T, partyID int64) decimal.Decimal {
	t.Helper()
	p, err := f.store.GetParty(context.Background(), partyID)
	require.NoError(t, err)
	return p.Balance
}

func saleDraft(partyID int64, mode string, lines ...core.InvoiceLineInput) core.InvoiceDraft {
	return core.InvoiceDraft{
		Kind:        core.KindSale,
		PartyID:     partyID,
		PaymentMode: "CASH",
		TaxMode:     taxMode(mode),
		Lines:       lines,
	}
}

func line(itemID int64, qty string) core.InvoiceLineInput {
	return core.InvoiceLineInput{ItemID: itemID, Quantity: d(qty)}
}

func taxMode(s string) money.TaxMode {
	return money.TaxMode(s)
}
