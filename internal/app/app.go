// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/clock/system"
	"github.com/JakeFAU/directory-crawler/internal/config"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/dispatcher"
	"github.com/JakeFAU/directory-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/directory-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/directory-crawler/internal/id/uuid"
	"github.com/JakeFAU/directory-crawler/internal/listing"
	"github.com/JakeFAU/directory-crawler/internal/retry"
	"github.com/JakeFAU/directory-crawler/internal/storage/memory"
	"github.com/JakeFAU/directory-crawler/internal/storage/postgres"
	"github.com/JakeFAU/directory-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/directory-crawler/internal/worker"
)

// Store is a RecordStore that owns resources.
type Store interface {
	crawler.RecordStore
	Close() error
}

// SchemaStore is implemented by stores that manage a SQL schema.
type SchemaStore interface {
	EnsureSchema(ctx context.Context) error
}

// CountingStore reports how many records a store already holds.
type CountingStore interface {
	Count(ctx context.Context) (int, error)
}

// App holds the shared, long-lived services for one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	store  Store
	// fetcher overrides the colly transport when set.
	fetcher crawler.Fetcher
	clock   crawler.Clock
}

// Option customizes an App.
type Option func(*App)

// WithFetcher replaces the HTTP transport.
func WithFetcher(f crawler.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithClock replaces the clock used for retry backoff.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// New creates the App and opens the configured store. It fails fast when the
// store cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: system.New()}
	for _, opt := range opts {
		opt(a)
	}

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = store
	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case config.ProviderPostgres:
		logger.Info("Connecting to PostgreSQL...", zap.String("table", cfg.Postgres.Table))
		store, err := postgres.NewCompanyStore(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.ProviderSQLite:
		logger.Info("Using SQLite store", zap.String("path", cfg.SQLite.Path))
		store, err := sqlite.NewCompanyStore(ctx, sqlite.Config{Path: cfg.SQLite.Path})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.ProviderMemory:
		logger.Info("Using in-memory store. Records are discarded on exit.")
		return memory.NewCompanyStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the record store.
func (a *App) Store() Store {
	return a.store
}

// Migrate creates the store schema. Stores without a schema are left alone.
func (a *App) Migrate(ctx context.Context) error {
	schema, ok := a.store.(SchemaStore)
	if !ok {
		a.logger.Info("store has no schema to migrate", zap.String("provider", a.cfg.Storage.Provider))
		return nil
	}
	if err := schema.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("migrate %s store: %w", a.cfg.Storage.Provider, err)
	}
	fields := []zap.Field{zap.String("provider", a.cfg.Storage.Provider)}
	if counter, ok := a.store.(CountingStore); ok {
		n, err := counter.Count(ctx)
		if err != nil {
			return fmt.Errorf("count %s store: %w", a.cfg.Storage.Provider, err)
		}
		fields = append(fields, zap.Int("records", n))
	}
	a.logger.Info("schema ready", fields...)
	return nil
}

// NewDispatcher wires the transport, extractor, retry policy, listing fetcher
// and worker into a ready-to-run Dispatcher.
func (a *App) NewDispatcher() (*dispatcher.Dispatcher, error) {
	cfg := a.cfg
	fetcher := a.fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:       cfg.Crawler.UserAgent,
			RespectRobots:   cfg.Crawler.RespectRobots,
			Timeout:         cfg.RequestTimeout(),
			MaxConnsPerHost: cfg.HTTP.MaxConnsPerHost,
		})
	}

	extractor, err := extract.New(extract.Config{BaseURL: cfg.Crawler.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	policy := retry.NewFixedRetryPolicy(retry.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		Interval:   cfg.Retry.Interval,
	}, a.clock)

	pages, err := listing.New(fetcher, extractor, policy, listing.Config{SearchURL: cfg.Crawler.SearchURL}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init listing fetcher: %w", err)
	}
	entities, err := worker.New(fetcher, extractor, a.store, policy, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init worker: %w", err)
	}
	d, err := dispatcher.New(pages, entities, uuid.New(), dispatcher.Config{
		StartPage: cfg.Crawler.StartPage,
		MaxPages:  cfg.Crawler.MaxPages,
		BatchSize: cfg.Crawler.BatchSize,
	}, a.logger, dispatcher.WithClock(a.clock))
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	return d, nil
}

// Close releases the store. Errors are logged and returned.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close store", zap.Error(err))
		return fmt.Errorf("close store: %w", err)
	}
	a.logger.Info("Application services shut down.")
	return nil
}

// Config returns the configuration the App was built with.
func (a *App) Config() config.Config {
	return a.cfg
}
