package database

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/curriculum-catalog-server/internal/domain"
	"github.com/curriculum-catalog-server/internal/lessonplan"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestConfigFromStorage(t *testing.T) {
	cfg := ConfigFromStorage(domain.StorageConfig{
		PostgresURL:     "postgres://u:p@localhost:5432/db",
		MaxOpenConns:    10,
		MaxIdleConns:    20,
		ConnMaxLifetime: time.Hour,
	})
	assert.Equal(t, "postgres://u:p@localhost:5432/db", cfg.URL)
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, int32(10), cfg.MinConns, "min conns are capped at max conns")
	assert.Equal(t, time.Hour, cfg.MaxConnLife)

	assert.Equal(t, int32(4), ConfigFromStorage(domain.StorageConfig{}).MaxConns)
}

func TestNewConnection_InvalidURL(t *testing.T) {
	_, err := NewConnection(context.Background(), Config{URL: "postgres://%zz"}, quietLogger())
	assert.Error(t, err)
}

func TestDatabaseConnection(t *testing.T) {
	url := startPostgres(t)
	ctx := context.Background()

	db, err := NewConnection(ctx, Config{
		URL:         url,
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: 30 * time.Minute,
	}, quietLogger())
	require.NoError(t, err, "Failed to create database connection")
	defer db.Close()

	require.NoError(t, db.Health(ctx))

	stats := db.Stats()
	assert.NotZero(t, stats.TotalConns, "Expected at least one connection in pool")
	assert.Equal(t, int32(10), stats.MaxConns)
}

func TestMigrationsCreateLessonPlanSchema(t *testing.T) {
	url := startPostgres(t)
	ctx := context.Background()

	runner, err := NewMigrationRunner(url, quietLogger())
	require.NoError(t, err)
	defer runner.Close()

	require.NoError(t, runner.Up(ctx))
	require.NoError(t, runner.Up(ctx), "a second run is a no-op")

	version, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	store, err := lessonplan.NewPostgresStoreFromURL(url, lessonplan.PoolConfig{})
	require.NoError(t, err)
	defer store.Close()

	plan := &lessonplan.LessonPlan{
		Title:        "Ecosistemas locales",
		Level:        domain.Secundaria,
		Grade:        1,
		SubjectAreas: []domain.SubjectArea{domain.AreaSaberes},
		Descriptors:  []string{"Describe cadenas tróficas."},
	}
	require.NoError(t, store.Create(ctx, plan))

	plans, err := store.List(ctx, lessonplan.Filter{SubjectArea: "saberes y pensamiento científico"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, plan.ID, plans[0].ID)
	assert.Equal(t, []string{"Describe cadenas tróficas."}, plans[0].Descriptors)

	require.NoError(t, runner.Down(ctx))
	_, err = store.Get(ctx, plan.ID)
	assert.Error(t, err, "table is gone after rolling back")
}
