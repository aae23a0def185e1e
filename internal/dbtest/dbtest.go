// Package dbtest runs store tests against a throwaway Postgres container.
package dbtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"mellow-backend/internal/db"
)

var (
	once    sync.Once
	shared  *sqlx.DB
	initErr error
)

// start boots one container per test binary. Ryuk removes it when the
// binary exits.
func start() (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("mellow"),
		postgres.WithUsername("mellow"),
		postgres.WithPassword("mellow"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		return nil, fmt.Errorf("postgres connection string: %w", err)
	}

	conn, err := db.Connect(ctx, dsn)
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		return nil, err
	}
	return conn, nil
}

// Open returns a migrated database with every table emptied. It skips the
// test in short mode. Tests sharing it must not run in parallel.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	once.Do(func() { shared, initErr = start() })
	if initErr != nil {
		t.Fatalf("postgres: %v", initErr)
	}

	// users cascades to every owned table
	if _, err := shared.Exec(`
		TRUNCATE users, conversations, analytics_events RESTART IDENTITY CASCADE
	`); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
	return shared
}

// User inserts an account with an empty profile and returns its id.
func User(t *testing.T, conn *sqlx.DB, email string) int64 {
	t.Helper()

	var id int64
	if err := conn.QueryRow(`
		INSERT INTO users (email, password_hash) VALUES ($1, 'x') RETURNING id
	`, email).Scan(&id); err != nil {
		t.Fatalf("inserting user %s: %v", email, err)
	}
	if _, err := conn.Exec(`INSERT INTO profiles (user_id) VALUES ($1)`, id); err != nil {
		t.Fatalf("inserting profile %d: %v", id, err)
	}
	return id
}
