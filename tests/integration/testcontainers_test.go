// Package integration runs the stores and the wired pipeline against real
// Postgres and Redis containers.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/storage"
)

// TestContainerSetup represents the test container infrastructure.
type TestContainerSetup struct {
	PostgresConnStr string
	RedisAddr       string
	cleanup         []func()
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if !isDockerAvailable() {
		t.Skip("Docker not available")
	}
}

// startPostgres runs a Postgres container; pg_trgm ships with the image.
func startPostgres(t *testing.T, s *TestContainerSetup) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("agriguru_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	s.cleanup = append(s.cleanup, func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	s.PostgresConnStr = fmt.Sprintf("postgres://test:test@%s:%s/agriguru_test?sslmode=disable", host, port.Port())
}

func startRedis(t *testing.T, s *TestContainerSetup) {
	t.Helper()
	ctx := context.Background()

	redisContainer, err := redis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	s.cleanup = append(s.cleanup, func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)
	s.RedisAddr = fmt.Sprintf("%s:%s", host, port.Port())
}

// SetupTestContainers starts the requested containers and registers
// their teardown with t.
func SetupTestContainers(t *testing.T, withPostgres, withRedis bool) *TestContainerSetup {
	t.Helper()
	requireDocker(t)

	s := &TestContainerSetup{}
	t.Cleanup(s.Cleanup)
	if withPostgres {
		startPostgres(t, s)
	}
	if withRedis {
		startRedis(t, s)
	}
	return s
}

// Cleanup terminates all test containers.
func (s *TestContainerSetup) Cleanup() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

// DatabaseConfig points the store at the container.
func (s *TestContainerSetup) DatabaseConfig() config.DatabaseConfig {
	def := config.DefaultConfig().Database
	def.Driver = "postgres"
	def.Postgres.DSN = s.PostgresConnStr
	return def
}

// OpenMigrated connects to Postgres and applies the schema.
func (s *TestContainerSetup) OpenMigrated(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.Open(ctx, s.DatabaseConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	applied, err := storage.Migrate(ctx, db)
	require.NoError(t, err)
	require.Contains(t, applied, "0001_init")
	return db
}

// isDockerAvailable checks if Docker is available for testing.
func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.Client().Ping(ctx)
	return err == nil
}
