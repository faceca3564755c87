package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/model"
)

// effectiveReadSQL mirrors model.ResolveReadState: read when the stored flag is
// set or the viewer holds a receipt. r is the viewer's receipt join.
const effectiveReadSQL = "(n.is_read OR r.user_id IS NOT NULL)"

const notificationColumns = `n.notification_id, n.user_id, n.title, n.message, n.created_at,
       n.created_by, n.form_id, n.submission_id, n.is_read`

// PostgresNotificationStore implements NotificationStore for PostgreSQL.
// It holds no connection; every call runs on the session it is given.
type PostgresNotificationStore struct{}

// NewPostgresNotificationStore creates a new PostgreSQL notification store
func NewPostgresNotificationStore() *PostgresNotificationStore {
	return &PostgresNotificationStore{}
}

// CreateNotification inserts n and fills in its id, creation time and read flag
func (s *PostgresNotificationStore) CreateNotification(ctx context.Context, db DBTX, n *model.Notification) error {
	query := `
		INSERT INTO notifications (user_id, title, message, created_by, form_id, submission_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING notification_id, created_at, is_read
	`

	err := db.QueryRow(ctx, query,
		n.UserID,
		n.Title,
		n.Message,
		n.CreatedBy,
		n.FormID,
		n.SubmissionID,
	).Scan(&n.NotificationID, &n.CreatedAt, &n.IsRead)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// GetNotificationForUpdate loads a notification and locks its row until the
// surrounding transaction ends.
func (s *PostgresNotificationStore) GetNotificationForUpdate(ctx context.Context, db DBTX, notificationID int64) (*model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications n
		WHERE n.notification_id = $1
		FOR UPDATE
	`

	var n model.Notification
	err := db.QueryRow(ctx, query, notificationID).Scan(
		&n.NotificationID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&n.CreatedAt,
		&n.CreatedBy,
		&n.FormID,
		&n.SubmissionID,
		&n.IsRead,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return &n, nil
}

// MarkRead sets the stored read flag
func (s *PostgresNotificationStore) MarkRead(ctx context.Context, db DBTX, notificationID int64) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE notification_id = $1`

	result, err := db.Exec(ctx, query, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// InsertReadReceipt records that userID acknowledged a broadcast. It reports
// false when the receipt already existed.
func (s *PostgresNotificationStore) InsertReadReceipt(ctx context.Context, db DBTX, notificationID int64, userID string) (bool, error) {
	query := `
		INSERT INTO notification_reads (notification_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (notification_id, user_id) DO NOTHING
	`

	result, err := db.Exec(ctx, query, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to insert read receipt: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// HasReadReceipt reports whether userID holds a receipt for the notification
func (s *PostgresNotificationStore) HasReadReceipt(ctx context.Context, db DBTX, notificationID int64, userID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notification_reads WHERE notification_id = $1 AND user_id = $2
		)
	`

	var exists bool
	if err := db.QueryRow(ctx, query, notificationID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check read receipt: %w", err)
	}

	return exists, nil
}

// CountAcknowledged counts distinct audience members holding a receipt
func (s *PostgresNotificationStore) CountAcknowledged(ctx context.Context, db DBTX, notificationID int64, audience model.Audience) (int64, error) {
	query := `
		SELECT COUNT(DISTINCT r.user_id)
		FROM notification_reads r
		JOIN users u ON u.user_id = r.user_id
		WHERE r.notification_id = $1
		  AND ($2 OR u.role <> $3)
	`

	var count int64
	if err := db.QueryRow(ctx, query, notificationID, audience.IncludeAdmins, string(model.RoleAdmin)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count read receipts: %w", err)
	}

	return count, nil
}

// DeleteReadReceipts purges every receipt of a notification
func (s *PostgresNotificationStore) DeleteReadReceipts(ctx context.Context, db DBTX, notificationID int64) (int64, error) {
	query := `DELETE FROM notification_reads WHERE notification_id = $1`

	result, err := db.Exec(ctx, query, notificationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete read receipts: %w", err)
	}

	return result.RowsAffected(), nil
}

// GetUser loads the role and name of a tenant user
func (s *PostgresNotificationStore) GetUser(ctx context.Context, db DBTX, userID string) (*model.User, error) {
	query := `SELECT user_id, role, full_name FROM users WHERE user_id = $1`

	var (
		user model.User
		role string
	)
	err := db.QueryRow(ctx, query, userID).Scan(&user.UserID, &role, &user.FullName)
	if errors.Is(err, pgx.ErrNoRows) || isInvalidTextRepresentation(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Role = model.ParseRole(role)
	return &user, nil
}

// CountAudience counts the users who receive broadcasts
func (s *PostgresNotificationStore) CountAudience(ctx context.Context, db DBTX, audience model.Audience) (int64, error) {
	query := `SELECT COUNT(*) FROM users WHERE ($1 OR role <> $2)`

	var count int64
	if err := db.QueryRow(ctx, query, audience.IncludeAdmins, string(model.RoleAdmin)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count broadcast audience: %w", err)
	}

	return count, nil
}

// ListVisible returns the viewer's notifications newest first with their
// effective read state resolved.
func (s *PostgresNotificationStore) ListVisible(ctx context.Context, db DBTX, filter VisibilityFilter) ([]*model.NotificationView, error) {
	where, args := visibilityClause(filter)

	query := `
		SELECT ` + notificationColumns + `,
		       (r.user_id IS NOT NULL) AS viewer_receipt,
		       f.title AS form_title
		FROM notifications n
		LEFT JOIN notification_reads r
		       ON r.notification_id = n.notification_id AND r.user_id = $1
		LEFT JOIN form f ON f.form_id = n.form_id
		WHERE ` + where + `
		ORDER BY n.created_at DESC, n.notification_id DESC
	`

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	views := make([]*model.NotificationView, 0)
	for rows.Next() {
		var (
			n             model.Notification
			viewerReceipt bool
			formTitle     *string
		)
		if err := rows.Scan(
			&n.NotificationID,
			&n.UserID,
			&n.Title,
			&n.Message,
			&n.CreatedAt,
			&n.CreatedBy,
			&n.FormID,
			&n.SubmissionID,
			&n.IsRead,
			&viewerReceipt,
			&formTitle,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		views = append(views, model.NewNotificationView(n, formTitle, viewerReceipt))
	}

	return views, rows.Err()
}

// CountVisible counts what ListVisible would return without paging
func (s *PostgresNotificationStore) CountVisible(ctx context.Context, db DBTX, filter VisibilityFilter) (int64, error) {
	where, args := visibilityClause(filter)

	query := `
		SELECT COUNT(*)
		FROM notifications n
		LEFT JOIN notification_reads r
		       ON r.notification_id = n.notification_id AND r.user_id = $1
		WHERE ` + where

	var count int64
	if err := db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	return count, nil
}

// visibilityClause builds the WHERE clause shared by ListVisible and
// CountVisible. $1 is always the viewer id.
func visibilityClause(filter VisibilityFilter) (string, []interface{}) {
	args := []interface{}{filter.UserID}

	where := "n.user_id = $1"
	if filter.IncludeBroadcasts {
		where = "(n.user_id = $1 OR n.user_id IS NULL)"
	}

	switch filter.Status {
	case model.StatusRead:
		where += " AND " + effectiveReadSQL
	case model.StatusUnread:
		where += " AND NOT " + effectiveReadSQL
	}

	return where, args
}

// isInvalidTextRepresentation matches malformed UUID input (SQLSTATE 22P02).
func isInvalidTextRepresentation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
