package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"PriceScanner/internal/catalog"
	"PriceScanner/internal/claims"
	"PriceScanner/internal/classify"
	"PriceScanner/internal/config"
	"PriceScanner/internal/infrastructure/ml"
	"PriceScanner/internal/infrastructure/scheduler"
	"PriceScanner/internal/infrastructure/storage"
	"PriceScanner/internal/infrastructure/telegram"
	"PriceScanner/internal/logging"
	"PriceScanner/internal/messaging"
	"PriceScanner/internal/usecase"
)

// Application wires configs to per-account orchestrators and storage.
type Application struct {
	cfg           config.Config
	pool          *pgxpool.Pool
	orchestrators []*usecase.Orchestrator
	logger        *slog.Logger
}

// New builds the runnable application: storage, clients, one orchestrator
// per configured account.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	repo := storage.NewPostgresRepository(pool)
	if err := repo.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prepare schema: %w", err)
	}

	registry := messaging.NewRegistry()
	registry.Register("preview", telegram.Factory)

	var booster classify.Booster
	if cfg.ML.Endpoint != "" {
		booster = ml.NewClient(cfg.ML.Endpoint, cfg.ML.APIKey)
	}
	classifier := classify.New(booster)

	matcher := catalog.NewMatcher(repo, logging.ForComponent(baseLogger, "matcher"))
	coordinator := claims.NewCoordinator(repo, cfg.Pipeline.MinMessages,
		logging.ForComponent(baseLogger, "claims"))

	orchestrators := make([]*usecase.Orchestrator, 0, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		client, err := registry.Build(acc.Client, acc.Label, acc.Options,
			logging.ForComponent(baseLogger, "client").With("account", acc.Label))
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("build client for %s: %w", acc.Label, err)
		}

		orchestrators = append(orchestrators, usecase.NewOrchestrator(usecase.OrchestratorDeps{
			Account:         acc.Label,
			Client:          client,
			Registry:        repo,
			Claims:          coordinator,
			Matcher:         matcher,
			Classifier:      classifier,
			Driver:          scheduler.NewIntervalScheduler(cfg.Pipeline.BackfillIntervalDuration()),
			Logger:          logging.ForComponent(baseLogger, "orchestrator"),
			RefreshInterval: cfg.Pipeline.RefreshIntervalDuration(),
			HistoryWindow:   cfg.Pipeline.HistoryWindow,
		}))
	}

	return &Application{
		cfg:           cfg,
		pool:          pool,
		orchestrators: orchestrators,
		logger:        logging.ForComponent(baseLogger, "app"),
	}, nil
}

// Run drives every account loop until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.pool.Close()

	if len(a.orchestrators) == 0 {
		a.logger.Warn("no accounts configured, nothing to run")
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, orch := range a.orchestrators {
		orch := orch
		g.Go(func() error { return orch.Run(ctx) })
	}
	return g.Wait()
}
