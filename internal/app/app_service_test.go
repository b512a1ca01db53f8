package app_test

import (
	"context"
	"errors"
	"testing"

	"billing-engine/internal/app"
	"billing-engine/internal/core"
	"billing-engine/internal/money"
	"billing-engine/internal/store/memory"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (app.ApplicationService, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	return app.NewAppService(memory.New(core.DefaultRetryPolicy), nil, logger), hook
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAppService_PostInvoiceEndToEnd(t *testing.T) {
	svc, hook := newService(t)
	ctx := context.Background()

	rate := d("10")
	item, err := svc.CreateItem(ctx, app.CreateItemRequest{Name: "Notebook", UnitPrice: d("100"), TaxRate: &rate, OpeningQuantity: d("10")})
	require.NoError(t, err)
	party, err := svc.CreateParty(ctx, app.CreatePartyRequest{Name: "Asha", Role: "CUSTOMER"})
	require.NoError(t, err)

	req := app.InvoiceRequest{
		Number:  "INV-1",
		Kind:    "SALE",
		PartyID: party.ID,
		TaxMode: "OUT_TAX",
		Lines:   []app.InvoiceLineRequest{{ItemID: item.ID, Quantity: d("2")}},
	}
	inv, err := svc.PostInvoice(ctx, req)
	require.NoError(t, err)
	assert.True(t, d("220").Equal(inv.GrandTotal))

	again, err := svc.PostInvoice(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, again.ID)

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, d("8").Equal(got.Quantity))

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.InfoLevel, last.Level)
	assert.Equal(t, "invoice posted", last.Message)

	history, err := svc.History(ctx, core.TargetParty, party.ID)
	require.NoError(t, err)
	assert.Len(t, history.Entries, 1)
}

func TestAppService_ValidationErrorsNameJSONFields(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.PostInvoice(ctx, app.InvoiceRequest{
		Kind:    "GIFT",
		TaxMode: "OUT_TAX",
		Lines:   []app.InvoiceLineRequest{{Quantity: d("1")}},
	})
	require.ErrorIs(t, err, core.ErrInvalidInput)

	var verr *app.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "oneof", verr.Fields["kind"])
	assert.Equal(t, "required", verr.Fields["party_id"])
	assert.Equal(t, "required", verr.Fields["lines[0].item_id"])

	_, err = svc.ApplyPayment(ctx, app.ApplyPaymentRequest{PartyID: 1, Amount: d("5"), Direction: "SIDEWAYS", ReferenceID: "R"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "oneof", verr.Fields["direction"])
}

func TestAppService_TaxModesAreNormalized(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rate := d("10")
	item, err := svc.CreateItem(ctx, app.CreateItemRequest{Name: "Kettle", UnitPrice: d("220"), TaxRate: &rate, OpeningQuantity: d("5")})
	require.NoError(t, err)
	party, err := svc.CreateParty(ctx, app.CreatePartyRequest{Name: "Ravi", Role: "CUSTOMER"})
	require.NoError(t, err)
	req := app.InvoiceRequest{
		Kind:    "SALE",
		PartyID: party.ID,
		TaxMode: "in_tax",
		Lines:   []app.InvoiceLineRequest{{ItemID: item.ID, Quantity: d("1")}},
	}

	quote, err := svc.QuoteInvoice(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, money.InTax, quote.TaxMode)
	assert.True(t, d("220").Equal(quote.GrandTotal))
	assert.True(t, d("20").Equal(quote.TaxAmount))

	req.GSTType = " Out_Tax "
	quote, err = svc.QuoteInvoice(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, quote.GSTType)
	assert.Equal(t, money.OutTax, *quote.GSTType)
	assert.True(t, d("242").Equal(quote.GrandTotal))

	req.GSTType = "vat"
	_, err = svc.PostInvoice(ctx, req)
	assert.ErrorIs(t, err, core.ErrInconsistentTaxConfig)
	req.GSTType = ""
	req.TaxMode = "inclusive"
	_, err = svc.PostInvoice(ctx, req)
	assert.ErrorIs(t, err, core.ErrInconsistentTaxConfig)
}

func TestAppService_BusinessFailuresLoggedAtWarn(t *testing.T) {
	svc, hook := newService(t)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, app.CreateItemRequest{Name: "Pen", UnitPrice: d("5"), OpeningQuantity: d("1")})
	require.NoError(t, err)

	_, err = svc.AdjustStock(ctx, app.AdjustStockRequest{ItemID: item.ID, Delta: d("-2"), Reason: "breakage"})
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.WarnLevel, last.Level)
	assert.Equal(t, "AdjustStock", last.Data["funcName"])
}

func TestAppService_ConvertStockWithNewItem(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	lot, err := svc.ReceiveLot(ctx, app.ReceiveLotRequest{SourceRef: "BULK-1", Quantity: d("10"), UnitCost: d("2")})
	require.NoError(t, err)

	res, err := svc.ConvertStockToItem(ctx, app.ConvertStockRequest{
		LotID:       lot.ID,
		ReferenceID: "PACK-1",
		Targets: []app.ConversionTargetRequest{
			{NewItem: &app.CreateItemRequest{Name: "1kg pack", UnitPrice: d("3")}, Quantity: d("5")},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.True(t, d("5").Equal(res.Items[0].Quantity))

	stored, err := svc.GetStockLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.True(t, d("5").Equal(stored.Quantity))

	_, err = svc.ConvertStockToItem(ctx, app.ConvertStockRequest{
		LotID:   lot.ID,
		Targets: []app.ConversionTargetRequest{{NewItem: &app.CreateItemRequest{}, Quantity: d("1")}},
	})
	var verr *app.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["targets[0].new_item.name"])
}

func TestAppService_PaymentsAndVoid(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	party, err := svc.CreateParty(ctx, app.CreatePartyRequest{Name: "Kumar Traders", Role: "SUPPLIER", OpeningBalance: d("-500")})
	require.NoError(t, err)

	p, err := svc.ApplyPayment(ctx, app.ApplyPaymentRequest{PartyID: party.ID, Amount: d("200"), Direction: "OUT", ReferenceID: "NEFT-1"})
	require.NoError(t, err)
	assert.True(t, d("-300").Equal(p.Balance))

	p, err = svc.VoidPayment(ctx, party.ID, "NEFT-1")
	require.NoError(t, err)
	assert.True(t, d("-500").Equal(p.Balance))

	_, err = svc.GetParty(ctx, 999)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
