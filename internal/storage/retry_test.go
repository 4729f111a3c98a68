package storage

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastReplay = replayPolicy{Attempts: 4, Backoff: time.Millisecond}

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestReplayRetriesSerializationFailures(t *testing.T) {
	calls := 0
	err := replay(context.Background(), fastReplay, quietLogger(), func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestReplayStopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := &pgconn.PgError{Code: "23505"}
	err := replay(context.Background(), fastReplay, quietLogger(), func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	plain := errors.New("connection refused")
	require.ErrorIs(t, replay(context.Background(), fastReplay, quietLogger(), func() error { return plain }), plain)
}

func TestReplayGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := replay(context.Background(), replayPolicy{Attempts: 2, Backoff: time.Millisecond}, quietLogger(), func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "40P01", pgErr.Code)
	assert.Equal(t, 2, calls)
}

func TestReplayHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := replay(ctx, replayPolicy{Attempts: 3, Backoff: time.Second}, quietLogger(), func() error {
		return &pgconn.PgError{Code: "40001"}
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReplayable(t *testing.T) {
	assert.True(t, replayable(&pgconn.PgError{Code: "40001"}))
	assert.False(t, replayable(&pgconn.PgError{Code: "42P01"}))
	assert.False(t, replayable(nil))
}
