package database

import (
	"context"
	"database/sql"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
)

// postgres error codes worth re-running a transaction for
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// Transactor runs units of work in Postgres transactions. fn receives the *sqlx.Tx as its executor.
type Transactor struct {
	db         *sqlx.DB
	maxRetries int
	logger     core.Logger
}

var _ core.Transactor = (*Transactor)(nil)

func NewTransactor(db *sqlx.DB, conf *core.Config, logger core.Logger) *Transactor {
	return &Transactor{db: db, maxRetries: conf.Database.MaxTxRetries, logger: logger}
}

// IsRetryable reports whether err is a transient conflict: core.ErrTxConflict, a serialization failure or a deadlock.
// Business errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := core.AsAppError(err); ok {
		return false
	}
	if errors.Is(err, core.ErrTxConflict) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}

// InTx re-runs fn on transient conflicts, up to maxRetries times, and once on other infrastructure failures.
func (t *Transactor) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	var conflicts int
	var infraRetried bool
	for attempt := 0; ; attempt++ {
		err := t.run(ctx, fn)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return err
		case IsRetryable(err):
			if conflicts >= t.maxRetries {
				return errors.Wrap(err, "transaction retries exhausted")
			}
			conflicts++
		case !core.IsBusinessError(err) && !infraRetried:
			infraRetried = true
		default:
			return err
		}

		t.logger.Debug("retrying transaction", err, map[string]interface{}{"attempt": attempt + 1})
		backoff := time.Duration(attempt+1) * 10 * time.Millisecond
		backoff += time.Duration(rand.Int63n(int64(backoff)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (t *Transactor) run(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	tx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			t.logger.Warn("rolling back transaction", rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}
