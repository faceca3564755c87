package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/model"
)

// ErrNotFound is returned when a row or key is not found
var ErrNotFound = errors.New("not found")

// DBTX is the statement surface shared by pgx.Tx, *pgxpool.Conn and *pgxpool.Pool.
// Notification store methods take it so they run inside the caller's tenant session.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VisibilityFilter selects the notifications one viewer can see.
type VisibilityFilter struct {
	UserID string
	// IncludeBroadcasts adds every broadcast notification to the viewer's
	// own addressed notifications.
	IncludeBroadcasts bool
	Status            model.StatusFilter
	// Limit <= 0 means no limit.
	Limit  int
	Offset int
}

// NotificationStore persists notifications and broadcast read receipts
// inside the tenant schema bound to db.
type NotificationStore interface {
	// Notifications
	CreateNotification(ctx context.Context, db DBTX, n *model.Notification) error
	GetNotificationForUpdate(ctx context.Context, db DBTX, notificationID int64) (*model.Notification, error)
	MarkRead(ctx context.Context, db DBTX, notificationID int64) error

	// Read receipts
	InsertReadReceipt(ctx context.Context, db DBTX, notificationID int64, userID string) (bool, error)
	HasReadReceipt(ctx context.Context, db DBTX, notificationID int64, userID string) (bool, error)
	CountAcknowledged(ctx context.Context, db DBTX, notificationID int64, audience model.Audience) (int64, error)
	DeleteReadReceipts(ctx context.Context, db DBTX, notificationID int64) (int64, error)

	// Users
	GetUser(ctx context.Context, db DBTX, userID string) (*model.User, error)
	CountAudience(ctx context.Context, db DBTX, audience model.Audience) (int64, error)

	// Views
	ListVisible(ctx context.Context, db DBTX, filter VisibilityFilter) ([]*model.NotificationView, error)
	CountVisible(ctx context.Context, db DBTX, filter VisibilityFilter) (int64, error)
}

// IdempotencyStore keeps responses for replayed requests
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// SetIfAbsent stores value unless key exists; it reports whether it stored.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Cache interface for in-memory caching
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
