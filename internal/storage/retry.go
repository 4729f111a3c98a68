package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// replayPolicy bounds how often a transaction is re-run from scratch.
type replayPolicy struct {
	Attempts int
	Backoff  time.Duration
}

var saveRunReplay = replayPolicy{Attempts: 4, Backoff: 50 * time.Millisecond}

// Serialization failures and deadlocks leave nothing behind and succeed on a
// fresh transaction.
var replayableCodes = map[string]bool{
	"40001": true,
	"40P01": true,
}

func replayable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && replayableCodes[pgErr.Code]
}

// replay calls fn until it succeeds, fails with a non-replayable error or the
// policy's attempts are spent. The wait between attempts doubles from
// Backoff, jittered to between half and one and a half times its value.
func replay(ctx context.Context, p replayPolicy, logger *slog.Logger, fn func() error) error {
	delay := p.Backoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !replayable(err) || attempt >= p.Attempts {
			return err
		}
		wait := delay/2 + rand.N(delay) //nolint:gosec // jitter only
		logger.Warn("storage: replaying transaction", "attempt", attempt, "wait", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}

// inTx runs fn inside a transaction and commits it, replaying the whole
// transaction under p.
func (db *DB) inTx(ctx context.Context, p replayPolicy, fn func(pgx.Tx) error) error {
	return replay(ctx, p, db.logger, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("storage: commit: %w", err)
		}
		return nil
	})
}
