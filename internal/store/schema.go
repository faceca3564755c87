package store

import (
	"context"
	"fmt"
)

// notificationSchema is applied inside each tenant schema. users, form and
// form_submissions are owned by the surrounding application.
const notificationSchema = `
CREATE TABLE IF NOT EXISTS notifications (
    notification_id BIGSERIAL PRIMARY KEY,
    -- NULL addresses every member of the broadcast audience
    user_id UUID NULL REFERENCES users(user_id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_by UUID NOT NULL REFERENCES users(user_id),
    form_id UUID NULL REFERENCES form(form_id) ON DELETE SET NULL,
    submission_id UUID NULL REFERENCES form_submissions(submission_id) ON DELETE SET NULL,
    is_read BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_created
    ON notifications(user_id, created_at DESC, notification_id DESC);

CREATE INDEX IF NOT EXISTS idx_notifications_broadcast_created
    ON notifications(created_at DESC, notification_id DESC) WHERE user_id IS NULL;

-- Receipts exist only while a broadcast is partially acknowledged.
CREATE TABLE IF NOT EXISTS notification_reads (
    notification_id BIGINT NOT NULL REFERENCES notifications(notification_id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (notification_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_notification_reads_user
    ON notification_reads(user_id);
`

// ApplySchema creates the notification tables in the schema bound to db.
func ApplySchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, notificationSchema); err != nil {
		return fmt.Errorf("failed to apply notification schema: %w", err)
	}
	return nil
}
