// Package testutil provides a disposable Postgres for the storage
// integration tests (build tag "integration").
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/salesbench/internal/storage"
	"github.com/ashita-ai/salesbench/migrations"
)

const (
	pgImage    = "postgres:18-alpine"
	pgUser     = "salesbench"
	pgPassword = "salesbench"
	pgDatabase = "salesbench_test"
)

// Postgres is a running throwaway database container.
type Postgres struct {
	container testcontainers.Container
	DSN       string
}

// StartPostgres launches the container and waits until it accepts
// connections on its mapped port.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        pgImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			},
			// The server restarts once after initdb; wait for the second start.
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start %s: %w", pgImage, err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("testutil: container endpoint: %w", err)
	}
	return &Postgres{
		container: container,
		DSN:       fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgUser, pgPassword, endpoint, pgDatabase),
	}, nil
}

// MustStartPostgres is StartPostgres for TestMain: it exits on failure.
func MustStartPostgres() *Postgres {
	pg, err := StartPostgres(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return pg
}

// NewTestDB opens a storage.DB on the container with the schema applied.
func (p *Postgres) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, p.DSN, logger)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Terminate removes the container.
func (p *Postgres) Terminate() {
	_ = p.container.Terminate(context.Background())
}

// TestLogger logs warnings and errors to stderr.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
