package core_test

import (
	"context"
	"sync"
	"testing"

	"billing-engine/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentService_Directions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.party(t, core.RoleCustomer)
	supplier := f.party(t, core.RoleSupplier)

	p, err := f.payments.Apply(ctx, customer.ID, d("40"), core.PaymentIn, "RCPT-1")
	require.NoError(t, err)
	assertDecimal(t, "-40", p.Balance)

	p, err = f.payments.Apply(ctx, supplier.ID, d("25.5"), core.PaymentOut, "CHQ-1")
	require.NoError(t, err)
	assertDecimal(t, "25.5", p.Balance)
}

func TestPaymentService_DuplicateReferenceRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.party(t, core.RoleCustomer)

	_, err := f.payments.Apply(ctx, customer.ID, d("100"), core.PaymentIn, "RCPT-9")
	require.NoError(t, err)

	_, err = f.payments.Apply(ctx, customer.ID, d("100"), core.PaymentIn, "RCPT-9")
	require.ErrorIs(t, err, core.ErrDuplicateLedgerEntry)
	assertDecimal(t, "-100", f.balance(t, customer.ID))
}

func TestPaymentService_ConcurrentSameReferenceAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.party(t, core.RoleCustomer)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.payments.Apply(ctx, customer.ID, d("10"), core.PaymentIn, "RCPT-RACE")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, core.ErrDuplicateLedgerEntry)
	}
	assert.Equal(t, 1, ok)
	assertDecimal(t, "-10", f.balance(t, customer.ID))
}

func TestPaymentService_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.party(t, core.RoleCustomer)

	_, err := f.payments.Apply(ctx, customer.ID, d("0"), core.PaymentIn, "R")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	_, err = f.payments.Apply(ctx, customer.ID, d("-5"), core.PaymentIn, "R")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	_, err = f.payments.Apply(ctx, customer.ID, d("5"), core.PaymentIn, "")
	assert.ErrorIs(t, err, core.ErrMissingReference)
	_, err = f.payments.Apply(ctx, customer.ID, d("5"), "SIDEWAYS", "R")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.payments.Apply(ctx, 777, d("5"), core.PaymentIn, "R")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPaymentService_VoidRestoresBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.party(t, core.RoleCustomer)

	_, err := f.payments.Apply(ctx, customer.ID, d("60"), core.PaymentIn, "RCPT-2")
	require.NoError(t, err)

	p, err := f.payments.Void(ctx, customer.ID, "RCPT-2")
	require.NoError(t, err)
	assertDecimal(t, "0", p.Balance)

	_, err = f.payments.Void(ctx, customer.ID, "RCPT-2")
	assert.ErrorIs(t, err, core.ErrAlreadyVoided)
	_, err = f.payments.Void(ctx, customer.ID, "RCPT-unknown")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPaymentService_CreatePartyWithOpeningBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.payments.CreateParty(ctx, core.NewParty{Name: "Acme Supplies", Role: core.RoleSupplier, OpeningBalance: d("-1200")})
	require.NoError(t, err)
	assertDecimal(t, "-1200", p.Balance)
	assertDecimal(t, "-1200", f.balance(t, p.ID))

	entries, err := f.inventory.History(ctx, core.TargetParty, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.OpeningSourceID(core.TargetParty, p.ID), entries[0].SourceID)

	_, err = f.payments.CreateParty(ctx, core.NewParty{Name: "", Role: core.RoleCustomer})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.payments.CreateParty(ctx, core.NewParty{Name: "X", Role: "VENDOR"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
