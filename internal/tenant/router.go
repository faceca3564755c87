// Package tenant routes each unit of work to its tenant's PostgreSQL schema
// over the shared connection pool.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/metrics"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/store"
)

const (
	defaultAcquireTimeout = 5 * time.Second
	defaultSchemaCacheTTL = 5 * time.Minute
	rollbackTimeout       = 5 * time.Second

	schemaCachePrefix = "tenant:schema:"
)

// SessionFunc is a unit of work bound to one tenant schema. Returning an
// error rolls the session back.
type SessionFunc func(ctx context.Context, tx pgx.Tx) error

// Options tunes a Router.
type Options struct {
	// AcquireTimeout bounds the wait for a pool connection.
	AcquireTimeout time.Duration
	// SchemaCacheTTL is how long a confirmed schema is trusted. Only used with Cache.
	SchemaCacheTTL time.Duration
	Cache          store.Cache
	Metrics        *metrics.Metrics
}

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

// Router hands out tenant-scoped sessions on a shared pool.
type Router struct {
	pool    *pgxpool.Pool
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
	closed  atomic.Bool
}

// NewRouter creates a router over pool. The router owns the pool from here on
// and closes it in Close.
func NewRouter(pool *pgxpool.Pool, opts Options, logger *zap.Logger) *Router {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = defaultAcquireTimeout
	}
	if opts.SchemaCacheTTL <= 0 {
		opts.SchemaCacheTTL = defaultSchemaCacheTTL
	}

	r := &Router{
		pool:    pool,
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
	}

	if pool != nil {
		r.metrics.RegisterPoolGauges(
			func() float64 { return float64(r.Stat().Acquired) },
			func() float64 { return float64(r.Stat().Idle) },
			func() float64 { return float64(r.Stat().Total) },
		)
	}

	return r
}

// WithSession borrows a connection, binds it to tenantID's schema inside a
// transaction and runs fn. The transaction commits when fn returns nil and
// rolls back when it returns an error or panics; panics are re-raised after
// the rollback. The connection is always returned to the pool.
func (r *Router) WithSession(ctx context.Context, tenantID string, fn SessionFunc) error {
	if r.pool == nil || r.closed.Load() {
		return apperrors.Configuration("tenant router is closed")
	}
	if err := ValidateSchemaName(tenantID); err != nil {
		return err
	}

	start := time.Now()
	outcome := "rolled_back"
	defer func() {
		r.metrics.RecordSession(outcome, time.Since(start))
	}()

	conn, err := r.acquire(ctx)
	if err != nil {
		outcome = "unavailable"
		r.logger.Warn("Failed to acquire connection",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return apperrors.TenantUnavailable("no database connection available", err)
	}
	defer conn.Release()

	if err := r.ensureSchema(ctx, conn, tenantID); err != nil {
		outcome = "unavailable"
		return err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		outcome = "unavailable"
		return classify(conn, "failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.rollback(tx, tenantID)
			r.logger.Error("Tenant session panicked",
				zap.String("tenant_id", tenantID),
				zap.Any("panic", p))
			panic(p)
		}
	}()

	if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+pgx.Identifier{tenantID}.Sanitize()); err != nil {
		r.rollback(tx, tenantID)
		outcome = "unavailable"
		return apperrors.TenantUnavailable("failed to bind tenant schema", err)
	}

	if err := fn(ctx, tx); err != nil {
		r.rollback(tx, tenantID)
		r.logger.Debug("Tenant session rolled back",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return classify(conn, "tenant session failed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.rollback(tx, tenantID)
		r.logger.Error("Failed to commit tenant session",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return classify(conn, "failed to commit tenant session", err)
	}

	outcome = "committed"
	return nil
}

// Stat returns the current pool occupancy.
func (r *Router) Stat() Stats {
	if r.pool == nil {
		return Stats{}
	}
	s := r.pool.Stat()
	return Stats{
		Acquired: s.AcquiredConns(),
		Idle:     s.IdleConns(),
		Total:    s.TotalConns(),
		Max:      s.MaxConns(),
	}
}

// Ping checks that the pool can reach the database.
func (r *Router) Ping(ctx context.Context) error {
	if r.pool == nil || r.closed.Load() {
		return apperrors.Configuration("tenant router is closed")
	}
	return r.pool.Ping(ctx)
}

// Close drains the pool. It waits for borrowed connections to be released;
// sessions requested afterwards fail with a configuration error.
func (r *Router) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	if r.pool != nil {
		r.pool.Close()
	}
	r.logger.Info("Tenant router closed")
}

func (r *Router) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, r.opts.AcquireTimeout)
	defer cancel()

	return r.pool.Acquire(acquireCtx)
}

// ensureSchema confirms the tenant schema exists, trusting the cache for
// previously confirmed schemas.
func (r *Router) ensureSchema(ctx context.Context, conn *pgxpool.Conn, tenantID string) error {
	key := schemaCachePrefix + tenantID

	if r.opts.Cache != nil {
		if _, err := r.opts.Cache.Get(ctx, key); err == nil {
			r.metrics.RecordSchemaLookup(true)
			return nil
		}
	}
	r.metrics.RecordSchemaLookup(false)

	var exists bool
	err := conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)", tenantID,
	).Scan(&exists)
	if err != nil {
		return classify(conn, "failed to look up tenant schema", err)
	}
	if !exists {
		r.logger.Warn("Unknown tenant schema", zap.String("tenant_id", tenantID))
		return apperrors.TenantUnavailable(fmt.Sprintf("tenant %q is not provisioned", tenantID), nil)
	}

	if r.opts.Cache != nil {
		if err := r.opts.Cache.Set(ctx, key, true, r.opts.SchemaCacheTTL); err != nil {
			r.logger.Warn("Failed to cache tenant schema", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
	return nil
}

func (r *Router) rollback(tx pgx.Tx, tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.Warn("Failed to roll back tenant session",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}

// classify maps a session failure onto the error taxonomy. Errors already
// classified by the session body pass through unchanged.
func classify(conn *pgxpool.Conn, message string, err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if isRetryable(err) || (conn != nil && conn.Conn().IsClosed()) {
		return apperrors.TenantUnavailable(message, err)
	}
	return apperrors.Internal(message, err)
}

// isRetryable reports deadlocks, serialization failures and lost connections.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40P01", "40001":
			return true
		}
		// Class 08: connection exception.
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
