package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

// PostgreSQL error classes relevant to the validate-then-mutate flow.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
)

// AtomicRunner executes a validate-then-mutate closure as one atomic unit.
type AtomicRunner interface {
	RunAtomic(ctx context.Context, fn func(q Querier) error) error
}

// TxRunner runs closures inside serializable transactions with a bounded
// optimistic retry loop. Serialization failures and deadlocks invalidate any
// checks already performed, so the whole closure is re-executed, never a
// single sub-step.
type TxRunner struct {
	db         *sqlx.DB
	logger     *zap.Logger
	maxRetries int
	timeout    time.Duration

	// OnRetry is invoked once per retry attempt, if set.
	OnRetry func()
	// OnExhausted is invoked when a transaction gives up, whether the retry
	// limit or the timeout ended it.
	OnExhausted func()
}

// NewTxRunner builds a TxRunner with defaults applied.
func NewTxRunner(db *sqlx.DB, logger *zap.Logger, maxRetries int, timeout time.Duration) *TxRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TxRunner{db: db, logger: logger, maxRetries: maxRetries, timeout: timeout}
}

// RunAtomic opens a serializable transaction, runs fn, and commits. Any error
// from fn rolls the transaction back and is returned unchanged. Transient
// conflicts at any point restart fn from the beginning until the retry limit
// or the timeout is exhausted.
func (r *TxRunner) RunAtomic(ctx context.Context, fn func(q Querier) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if r.OnRetry != nil {
				r.OnRetry()
			}
			r.logger.Debug("retrying transaction", zap.Int("attempt", attempt))
		}

		err := r.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			r.exhausted()
			return appErrors.Wrap(ctx.Err(), appErrors.ErrConflictExhausted.Code, appErrors.ErrConflictExhausted.Status, "transaction timed out")
		}
		if !appErrors.IsTransient(err) {
			return err
		}
		lastErr = err
	}

	r.exhausted()
	return appErrors.Wrap(lastErr, appErrors.ErrConflictExhausted.Code, appErrors.ErrConflictExhausted.Status, appErrors.ErrConflictExhausted.Message)
}

func (r *TxRunner) exhausted() {
	if r.OnExhausted != nil {
		r.OnExhausted()
	}
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return ClassifyError(fmt.Errorf("begin transaction: %w", err))
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return ClassifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return ClassifyError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// ClassifyError maps driver-level failures onto the domain taxonomy. Unique
// index violations become duplicate conflicts: the guard in the service layer
// is advisory and two racing transactions may both pass it, leaving the index
// as the final arbiter. Serialization failures and deadlocks are transient.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *appErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected:
			return appErrors.Wrap(err, appErrors.ErrTransientConflict.Code, appErrors.ErrTransientConflict.Status, appErrors.ErrTransientConflict.Message)
		case pqUniqueViolation:
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("unique constraint violated: %s", pqErr.Constraint))
		case pqForeignKeyViolation:
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid reference: %s", pqErr.Constraint))
		}
	}
	return err
}
