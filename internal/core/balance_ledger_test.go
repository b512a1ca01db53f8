package core_test

import (
	"context"
	"testing"

	"billing-engine/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyEffect(f *fixture, partyID int64, amount, sourceID string) error {
	ledger := core.NewBalanceLedger()
	return f.store.WithTx(context.Background(), func(ctx context.Context, tx core.Tx) error {
		_, err := ledger.ApplyInvoiceEffect(ctx, tx, partyID, d(amount), sourceID)
		return err
	})
}

func voidEffect(f *fixture, partyID int64, sourceID string) error {
	ledger := core.NewBalanceLedger()
	return f.store.WithTx(context.Background(), func(ctx context.Context, tx core.Tx) error {
		_, err := ledger.Void(ctx, tx, partyID, sourceID)
		return err
	})
}

func TestBalanceLedger_DuplicateEffectRejected(t *testing.T) {
	f := newFixture(t)
	customer := f.party(t, core.RoleCustomer)

	require.NoError(t, applyEffect(f, customer.ID, "150.50", "invoice:1"))
	assertDecimal(t, "150.50", f.balance(t, customer.ID))

	err := applyEffect(f, customer.ID, "150.50", "invoice:1")
	require.ErrorIs(t, err, core.ErrDuplicateLedgerEntry)
	assertDecimal(t, "150.50", f.balance(t, customer.ID))
}

func TestBalanceLedger_VoidReversesStoredAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier := f.party(t, core.RoleSupplier)

	require.NoError(t, applyEffect(f, supplier.ID, "-80", "invoice:7"))
	require.NoError(t, applyEffect(f, supplier.ID, "30", "payment:P1"))
	assertDecimal(t, "-50", f.balance(t, supplier.ID))

	require.NoError(t, voidEffect(f, supplier.ID, "invoice:7"))
	assertDecimal(t, "30", f.balance(t, supplier.ID))

	err := voidEffect(f, supplier.ID, "invoice:7")
	assert.ErrorIs(t, err, core.ErrAlreadyVoided)
	assertDecimal(t, "30", f.balance(t, supplier.ID))

	entries, err := f.inventory.History(ctx, core.TargetParty, supplier.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	reversal := entries[2]
	assert.Equal(t, core.ReasonBalanceVoid, reversal.Reason)
	require.NotNil(t, reversal.ReversesID)
	assert.Equal(t, entries[0].ID, *reversal.ReversesID)
	assertDecimal(t, "80", reversal.Delta)
}

func TestBalanceLedger_VoidUnknownSourceIsNotFound(t *testing.T) {
	f := newFixture(t)
	customer := f.party(t, core.RoleCustomer)

	err := voidEffect(f, customer.ID, "invoice:404")
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = applyEffect(f, 9999, "10", "invoice:1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestBalanceLedger_VoidedSourceCannotBeReapplied(t *testing.T) {
	f := newFixture(t)
	customer := f.party(t, core.RoleCustomer)

	require.NoError(t, applyEffect(f, customer.ID, "10", "invoice:3"))
	require.NoError(t, voidEffect(f, customer.ID, "invoice:3"))

	err := applyEffect(f, customer.ID, "10", "invoice:3")
	assert.ErrorIs(t, err, core.ErrDuplicateLedgerEntry)
	assertDecimal(t, "0", f.balance(t, customer.ID))
}
