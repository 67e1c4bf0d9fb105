// Package setup assembles the runtime components shared by the HTTP and MCP
// entry points from a validated configuration.
package setup

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/curriculum-catalog-server/internal/api"
	"github.com/curriculum-catalog-server/internal/catalog"
	"github.com/curriculum-catalog-server/internal/database"
	"github.com/curriculum-catalog-server/internal/domain"
	"github.com/curriculum-catalog-server/internal/lessonplan"
	"github.com/curriculum-catalog-server/pkg/external"
)

// Components holds everything a server needs. Close releases them in
// reverse order of creation.
type Components struct {
	Client  *external.CurriculumClient
	Cache   *external.PayloadCache
	Catalog *catalog.Store
	Plans   lessonplan.Store
	DB      *database.DB
	Checks  map[string]api.HealthChecker

	logger  *logrus.Logger
	closers []func() error
}

// Build creates the upstream client, the optional payload cache, the catalog
// store and the lesson plan store. When withPlans is false no storage is
// opened.
func Build(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, withPlans bool) (*Components, error) {
	c := &Components{
		Checks: make(map[string]api.HealthChecker),
		logger: logger,
	}

	c.Client = external.NewCurriculumClient(cfg.Catalog, logger)
	c.Checks["upstream"] = upstreamCheck{c.Client}

	hints, err := catalog.ParseAreaHints(cfg.Catalog.AreaHints)
	if err != nil {
		return nil, err
	}
	opts := catalog.Options{
		Policy:          cfg.Catalog.GradeKeyStrategy,
		AreaHints:       hints,
		RefreshInterval: cfg.Catalog.RefreshInterval,
		QueryCacheSize:  cfg.Catalog.QueryCacheSize,
	}

	if cfg.Cache.Enabled {
		cache, err := external.NewPayloadCache(cfg.Cache, cfg.Catalog.SourceURL)
		if err != nil {
			logger.WithError(err).Warn("Payload cache unavailable, continuing without it")
		} else {
			c.Cache = cache
			opts.Cache = cache
			c.closers = append(c.closers, cache.Close)
			c.Checks["redis"] = api.HealthCheckFunc(cache.Ping)
		}
	}

	store, err := catalog.NewStore(c.Client, logger, opts)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create catalog store: %w", err)
	}
	c.Catalog = store

	if withPlans {
		if err := c.openPlans(ctx, cfg.Storage); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

func (c *Components) openPlans(ctx context.Context, storage domain.StorageConfig) error {
	switch storage.Driver {
	case "", "sqlite":
		plans, err := lessonplan.NewSQLiteStore(storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open lesson plan store: %w", err)
		}
		c.Plans = plans
		c.closers = append(c.closers, plans.Close)
		c.logger.WithField("path", plans.Path()).Info("Using SQLite lesson plan store")
		return nil

	case "postgres":
		if storage.MigrateOnStart {
			if err := migrate(ctx, storage.PostgresURL, c.logger); err != nil {
				return err
			}
		}

		db, err := database.NewConnection(ctx, database.ConfigFromStorage(storage), c.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.DB = db
		c.closers = append(c.closers, func() error { db.Close(); return nil })
		c.Checks["database"] = poolCheck{db}

		plans, err := lessonplan.NewPostgresStoreFromURL(storage.PostgresURL, lessonplan.PoolConfig{
			MaxOpenConns:    storage.MaxOpenConns,
			MaxIdleConns:    storage.MaxIdleConns,
			ConnMaxLifetime: storage.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("failed to open lesson plan store: %w", err)
		}
		c.Plans = plans
		c.closers = append(c.closers, plans.Close)
		c.logger.Info("Using PostgreSQL lesson plan store")
		return nil

	default:
		return fmt.Errorf("unsupported storage driver %q", storage.Driver)
	}
}

// upstreamCheck reports the catalog source and is unhealthy while the
// circuit breaker is open.
type upstreamCheck struct {
	client *external.CurriculumClient
}

func (u upstreamCheck) Health(context.Context) error {
	if state := u.client.BreakerState(); state == "open" {
		return fmt.Errorf("circuit breaker %s for %s", state, u.client.SourceURL())
	}
	return nil
}

func (u upstreamCheck) Details() interface{} {
	return map[string]string{
		"source_url":    u.client.SourceURL(),
		"breaker_state": u.client.BreakerState(),
	}
}

// poolCheck reports pgx pool statistics alongside the ping result.
type poolCheck struct {
	db *database.DB
}

func (p poolCheck) Health(ctx context.Context) error { return p.db.Health(ctx) }

func (p poolCheck) Details() interface{} { return p.db.Stats() }

func migrate(ctx context.Context, url string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(url, logger)
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases every opened resource. It is safe to call more than once.
func (c *Components) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.WithError(err).Warn("Failed to close component")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	c.closers = nil
	return firstErr
}
