// Package testutil provides shared testing utilities for the answerdesk
// project: a disposable PostgreSQL container with the schema applied, a
// discard logger, and deterministic mock AI components.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/answerdesk/answerdesk/db"
)

// TestDBContainer wraps a PostgreSQL test container with a ready
// connection pool. The schema (pgvector extension included) is already
// migrated when SetupTestDB returns.
type TestDBContainer struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts a pgvector-enabled PostgreSQL container, applies
// all embedded migrations, and returns a pool plus a cleanup function
// the caller must defer.
func SetupTestDB(t *testing.T) (*TestDBContainer, func()) {
	t.Helper()

	container, cleanup, err := SetupTestDBForMain()
	if err != nil {
		t.Fatalf("Failed to set up test database: %v", err)
	}
	return container, cleanup
}

// SetupTestDBForMain is the TestMain-friendly variant of SetupTestDB:
// packages that share one container across all tests call this once and
// pass the pool around, truncating between tests with CleanTables.
func SetupTestDBForMain() (*TestDBContainer, func(), error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("answerdesk_test"),
		postgres.WithUsername("answerdesk_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("starting PostgreSQL container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("getting connection string: %w", err)
	}

	if err := db.Migrate(connStr); err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	container := &TestDBContainer{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(context.Background())
	}

	return container, cleanup, nil
}

// CleanTables truncates all application tables for test isolation.
// Call between tests that share a database container.
func CleanTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`TRUNCATE knowledge_entries, review_queue`)
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
}
