package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentService manages parties and the payments that settle their balances.
type PaymentService interface {
	// CreateParty adds a customer or supplier. A non-zero OpeningBalance is
	// booked through the balance ledger.
	CreateParty(ctx context.Context, in NewParty) (*Party, error)
	// Apply records a payment. IN (received) lowers the balance, OUT (paid) raises it.
	// referenceID is required and may be applied once per party.
	Apply(ctx context.Context, partyID int64, amount decimal.Decimal, direction PaymentDirection, referenceID string) (*Party, error)
	// Void reverses a recorded payment.
	Void(ctx context.Context, partyID int64, referenceID string) (*Party, error)
}

type paymentService struct {
	store   Store
	balance *BalanceLedger
}

func NewPaymentService(store Store) PaymentService {
	return &paymentService{store: store, balance: NewBalanceLedger()}
}

func (s *paymentService) CreateParty(ctx context.Context, in NewParty) (*Party, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: party name is required", ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown party role %q", ErrInvalidInput, in.Role)
	}

	var out *Party
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		party := &Party{
			Name:      in.Name,
			Role:      in.Role,
			Balance:   decimal.Zero,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.CreateParty(ctx, party); err != nil {
			return fmt.Errorf("failed to create party: %w", err)
		}
		if !in.OpeningBalance.IsZero() {
			booked, err := s.balance.ApplyInvoiceEffect(ctx, tx, party.ID, in.OpeningBalance, OpeningSourceID(TargetParty, party.ID))
			if err != nil {
				return fmt.Errorf("failed to book opening balance for party %d: %w", party.ID, err)
			}
			party = booked
		}
		out = party
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *paymentService) Apply(ctx context.Context, partyID int64, amount decimal.Decimal, direction PaymentDirection, referenceID string) (*Party, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: unknown payment direction %q", ErrInvalidInput, direction)
	}
	if referenceID == "" {
		return nil, ErrMissingReference
	}

	var out *Party
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		party, err := s.balance.ApplyInvoiceEffect(ctx, tx, partyID, direction.balanceDelta(amount), PaymentSourceID(referenceID))
		if err != nil {
			return fmt.Errorf("failed to apply payment %s: %w", referenceID, err)
		}
		out = party
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *paymentService) Void(ctx context.Context, partyID int64, referenceID string) (*Party, error) {
	if referenceID == "" {
		return nil, ErrMissingReference
	}

	var out *Party
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		party, err := s.balance.Void(ctx, tx, partyID, PaymentSourceID(referenceID))
		if err != nil {
			return fmt.Errorf("failed to void payment %s: %w", referenceID, err)
		}
		out = party
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
