// Package testutil provisions throwaway tenant schemas for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/store"
)

// DatabaseURLEnv names the connection string integration tests run against.
const DatabaseURLEnv = "NOTIFY_TEST_DATABASE_URL"

// baseTables stands in for the tables the surrounding application owns.
const baseTables = `
CREATE TABLE IF NOT EXISTS users (
    user_id UUID PRIMARY KEY,
    full_name TEXT NOT NULL,
    role TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS form (
    form_id UUID PRIMARY KEY,
    title TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS form_submissions (
    submission_id UUID PRIMARY KEY,
    form_id UUID NOT NULL REFERENCES form(form_id) ON DELETE CASCADE
);
`

// PoolFromEnv opens a pool against NOTIFY_TEST_DATABASE_URL or skips the test.
func PoolFromEnv(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dsn := os.Getenv(DatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s not set", DatabaseURLEnv)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)

	return pool
}

// CreateTenant creates a uniquely named tenant schema with the base and
// notification tables, dropped again when the test ends.
func CreateTenant(t *testing.T, pool *pgxpool.Pool, prefix string) string {
	t.Helper()

	schema := fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.NewString()[:8], "-", ""))
	ident := pgx.Identifier{schema}.Sanitize()
	ctx := context.Background()

	_, err := pool.Exec(ctx, "CREATE SCHEMA "+ident)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
	})

	InSchema(t, pool, schema, func(tx pgx.Tx) {
		_, err := tx.Exec(ctx, baseTables)
		require.NoError(t, err)
		require.NoError(t, store.ApplySchema(ctx, tx))
	})

	return schema
}

// InSchema runs fn in a committed transaction bound to schema.
func InSchema(t *testing.T, pool *pgxpool.Pool, schema string, fn func(tx pgx.Tx)) {
	t.Helper()
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, "SET LOCAL search_path TO "+pgx.Identifier{schema}.Sanitize())
	require.NoError(t, err)

	fn(tx)
	require.NoError(t, tx.Commit(ctx))
}

// SeedUser inserts a user and returns its id.
func SeedUser(t *testing.T, pool *pgxpool.Pool, schema, role, fullName string) string {
	t.Helper()
	id := uuid.NewString()
	InSchema(t, pool, schema, func(tx pgx.Tx) {
		_, err := tx.Exec(context.Background(),
			"INSERT INTO users (user_id, full_name, role) VALUES ($1, $2, $3)", id, fullName, role)
		require.NoError(t, err)
	})
	return id
}

// SeedForm inserts a form and returns its id.
func SeedForm(t *testing.T, pool *pgxpool.Pool, schema, title string) string {
	t.Helper()
	id := uuid.NewString()
	InSchema(t, pool, schema, func(tx pgx.Tx) {
		_, err := tx.Exec(context.Background(),
			"INSERT INTO form (form_id, title) VALUES ($1, $2)", id, title)
		require.NoError(t, err)
	})
	return id
}
