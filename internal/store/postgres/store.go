// Package postgres implements core.Store on pgx. Per-entity serialization
// comes from SELECT … FOR UPDATE row locks taken in the order the core
// services lock; a bounded lock_timeout turns long waits into retryable
// conflicts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-engine/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE codes the store reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// Options tune transaction behaviour. Zero values fall back to defaults.
type Options struct {
	Retry       core.RetryPolicy
	LockTimeout time.Duration
}

type Store struct {
	pool        *pgxpool.Pool
	policy      core.RetryPolicy
	lockTimeout time.Duration
}

var _ core.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, opts Options) *Store {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = core.DefaultRetryPolicy
	}
	if opts.LockTimeout == 0 {
		opts.LockTimeout = 2 * time.Second
	}
	return &Store{pool: pool, policy: opts.Retry, lockTimeout: opts.LockTimeout}
}

// WithTx runs fn in a READ COMMITTED transaction. Serialization failures,
// deadlocks and lock timeouts roll back and re-run fn.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	return core.RunWithRetry(ctx, s.policy, func() error {
		pgTx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer pgTx.Rollback(ctx)

		// SET does not take bind parameters.
		if _, err := pgTx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			return classify(fmt.Errorf("failed to set lock timeout: %w", err))
		}

		if err := fn(ctx, &tx{q: pgTx}); err != nil {
			return classify(err)
		}
		if err := pgTx.Commit(ctx); err != nil {
			return classify(fmt.Errorf("failed to commit transaction: %w", err))
		}
		return nil
	})
}

// classify marks transient PostgreSQL failures as core.ErrConflict so the
// retry loop picks them up.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %v", core.ErrConflict, err)
		}
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", core.ErrNotFound, what, id)
	}
	return fmt.Errorf("failed to fetch %s %v: %w", what, id, err)
}

// ── Non-locking reads ────────────────────────────────────────────────────────

func (s *Store) GetItem(ctx context.Context, id int64) (*core.Item, error) {
	return getItem(ctx, s.pool, id, false)
}

func (s *Store) GetStockLot(ctx context.Context, id int64) (*core.StockLot, error) {
	return getStockLot(ctx, s.pool, id, false)
}

func (s *Store) GetParty(ctx context.Context, id int64) (*core.Party, error) {
	return getParty(ctx, s.pool, id, false)
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*core.Invoice, error) {
	return getInvoice(ctx, s.pool, "id = $1", false, id)
}

func (s *Store) ListLedgerEntries(ctx context.Context, target core.LedgerTarget, targetID int64) ([]core.LedgerEntry, error) {
	return listLedgerEntries(ctx, s.pool, "target = $1 AND target_id = $2", string(target), targetID)
}
