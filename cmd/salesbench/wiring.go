package main

import (
	"context"
	"fmt"

	"github.com/ashita-ai/salesbench/internal/agentclient"
	"github.com/ashita-ai/salesbench/internal/evaluation"
	"github.com/ashita-ai/salesbench/internal/judge"
	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/progress"
	"github.com/ashita-ai/salesbench/internal/registry"
	"github.com/ashita-ai/salesbench/internal/retry"
	"github.com/ashita-ai/salesbench/internal/scenario"
	"github.com/ashita-ai/salesbench/internal/scoring"
	"github.com/ashita-ai/salesbench/internal/server"
	"github.com/ashita-ai/salesbench/internal/session"
	"github.com/ashita-ai/salesbench/internal/storage"
	"github.com/ashita-ai/salesbench/internal/storage/sqlitestore"
	"github.com/ashita-ai/salesbench/internal/telemetry"
	"github.com/ashita-ai/salesbench/migrations"
)

// runStore is what both the Postgres and the SQLite backends provide.
type runStore interface {
	evaluation.RunStore
	server.RunReader
	server.Pinger
	registry.Store
}

var (
	_ runStore = (*storage.DB)(nil)
	_ runStore = (*sqlitestore.Store)(nil)
)

// openStore opens Postgres when DATABASE_URL is set, otherwise SQLite at
// the configured path or sqlitePath. Both empty means no store: the
// returned store is nil and close is a no-op.
func (a *app) openStore(ctx context.Context, sqlitePath string) (runStore, func(), error) {
	if a.cfg.DatabaseURL != "" {
		db, err := storage.New(ctx, a.cfg.DatabaseURL, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		a.logger.Info("run store: postgres")
		return db, db.Close, nil
	}

	path := a.cfg.SQLitePath
	if path == "" {
		path = sqlitePath
	}
	if path == "" {
		a.logger.Info("run store: disabled")
		return nil, func() {}, nil
	}
	st, err := sqlitestore.Open(ctx, path, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("run store: sqlite", "path", path)
	return st, func() { _ = st.Close() }, nil
}

// agentPolicy applies the configured retry settings to agent calls.
func (a *app) agentPolicy(c retry.PayloadClass) retry.Policy {
	timeout := a.cfg.AgentTimeout
	if c == retry.Extended {
		timeout = a.cfg.ExtendedTimeout
	}
	return retry.Policy{
		MaxAttempts:    a.cfg.RetryAttempts,
		BaseDelay:      a.cfg.RetryBaseDelay,
		AttemptTimeout: timeout,
	}
}

// buildEngine loads the suite and the judge panel and assembles an engine.
// store and watchers may be nil.
func (a *app) buildEngine(ctx context.Context, store runStore, watchers progress.Emitter) (*evaluation.Engine, error) {
	suite, err := scenario.Load(a.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	counts := suite.Counts()
	a.logger.Info("scenario suite loaded",
		"dir", a.cfg.DataDir, "public", counts[model.VisibilityPublic], "private", counts[model.VisibilityPrivate],
		"deals", suite.Deals(), "digest", suite.Digest)

	if err := a.cfg.LoadJudges(); err != nil {
		return nil, err
	}
	models, err := judge.BuildModels(ctx, a.cfg.Judges)
	if err != nil {
		return nil, err
	}
	panel, err := judge.NewPanel(models, a.logger, judge.WithPolicy(a.agentPolicy(retry.Standard)))
	if err != nil {
		return nil, err
	}
	a.logger.Info("judge panel ready", "judges", panel.Names())

	client := agentclient.New(a.logger, agentclient.WithPolicy(a.agentPolicy))
	opts := []evaluation.Option{
		evaluation.WithFailurePolicy(scoring.FailurePolicy{Threshold: a.cfg.FailureThreshold}),
		evaluation.WithConcurrency(a.cfg.ScenarioConcurrency, a.cfg.AgentConcurrency),
		evaluation.WithSessions(session.New(client, a.cfg.MaxTurns, a.logger)),
	}
	if store != nil {
		opts = append(opts, evaluation.WithStore(store), evaluation.WithRegistry(store))
	} else {
		// Agents registered during this process are still resolvable by id.
		opts = append(opts, evaluation.WithRegistry(registry.NewMemory()))
	}
	if watchers != nil {
		opts = append(opts, evaluation.WithWatchers(watchers))
	}
	return evaluation.New(suite, client, panel, a.logger, opts...), nil
}

func (a *app) initTelemetry(ctx context.Context) (telemetry.Shutdown, error) {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    a.cfg.OTELEndpoint,
		ServiceName: a.cfg.ServiceName,
		Version:     version,
		Insecure:    a.cfg.OTELInsecure,
		SampleRatio: a.cfg.OTELSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return shutdown, nil
}
