package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceLedger owns party running balances. Like StockLedger it is TX-scoped.
// Unlike StockLedger, re-applying a key is an error: a balance effect must be
// counted exactly once and the caller has to know when it was not.
type BalanceLedger struct{}

func NewBalanceLedger() *BalanceLedger {
	return &BalanceLedger{}
}

// ApplyInvoiceEffect adds signedAmount to the party's balance on behalf of
// sourceID (an invoice or payment). See Party for the sign convention.
func (l *BalanceLedger) ApplyInvoiceEffect(ctx context.Context, tx Tx, partyID int64, signedAmount decimal.Decimal, sourceID string) (*Party, error) {
	if sourceID == "" {
		return nil, ErrMissingReference
	}
	party, err := tx.LockParty(ctx, partyID)
	if err != nil {
		return nil, err
	}

	key := LedgerKey{SourceID: sourceID, Reason: ReasonBalance, Target: TargetParty, TargetID: partyID}
	if _, err := tx.FindLedgerEntry(ctx, key); err == nil {
		return nil, fmt.Errorf("%w: %s already applied to party %d", ErrDuplicateLedgerEntry, sourceID, partyID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to check balance entry for %s: %w", sourceID, err)
	}

	after := party.Balance.Add(signedAmount)
	entry := &LedgerEntry{
		Target:    TargetParty,
		TargetID:  partyID,
		Delta:     signedAmount,
		Before:    party.Balance,
		After:     after,
		SourceID:  sourceID,
		Reason:    ReasonBalance,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.UpdatePartyBalance(ctx, partyID, after); err != nil {
		return nil, fmt.Errorf("failed to update balance for party %d: %w", partyID, err)
	}
	party.Balance = after
	return party, nil
}

// Void reverses the effect recorded for sourceID by its stored amount.
func (l *BalanceLedger) Void(ctx context.Context, tx Tx, partyID int64, sourceID string) (*Party, error) {
	party, err := tx.LockParty(ctx, partyID)
	if err != nil {
		return nil, err
	}

	original, err := tx.FindLedgerEntry(ctx, LedgerKey{SourceID: sourceID, Reason: ReasonBalance, Target: TargetParty, TargetID: partyID})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: no balance entry for %s on party %d", ErrNotFound, sourceID, partyID)
		}
		return nil, fmt.Errorf("failed to fetch balance entry for %s: %w", sourceID, err)
	}

	reversalKey := LedgerKey{SourceID: sourceID, Reason: ReasonBalanceVoid, Target: TargetParty, TargetID: partyID}
	if _, err := tx.FindLedgerEntry(ctx, reversalKey); err == nil {
		return nil, fmt.Errorf("%w: %s on party %d", ErrAlreadyVoided, sourceID, partyID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to check reversal for %s: %w", sourceID, err)
	}

	delta := original.Delta.Neg()
	after := party.Balance.Add(delta)
	reverses := original.ID
	entry := &LedgerEntry{
		Target:     TargetParty,
		TargetID:   partyID,
		Delta:      delta,
		Before:     party.Balance,
		After:      after,
		SourceID:   sourceID,
		Reason:     ReasonBalanceVoid,
		ReversesID: &reverses,
		CreatedAt:  time.Now().UTC(),
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.UpdatePartyBalance(ctx, partyID, after); err != nil {
		return nil, fmt.Errorf("failed to update balance for party %d: %w", partyID, err)
	}
	party.Balance = after
	return party, nil
}
