package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/metrics"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/model"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/store"
)

// Reconciler applies acknowledgments. Individual notifications flip their
// stored flag directly; broadcasts collect one receipt per audience member and
// are promoted to read once every member has acknowledged.
type Reconciler struct {
	sessions SessionRunner
	store    store.NotificationStore
	audience model.Audience
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(
	sessions SessionRunner,
	notificationStore store.NotificationStore,
	audience model.Audience,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		sessions: sessions,
		store:    notificationStore,
		audience: audience,
		metrics:  m,
		logger:   logger,
	}
}

// Acknowledge marks a notification read for userID.
func (r *Reconciler) Acknowledge(ctx context.Context, tenantID string, notificationID int64, userID string) (*model.AckResult, error) {
	if notificationID <= 0 {
		return nil, apperrors.InvalidArgument("notification id must be positive")
	}
	if userID == "" {
		return nil, apperrors.InvalidArgument("user id is required")
	}

	var result *model.AckResult
	err := r.sessions.WithSession(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		user, err := r.lookupUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		result, err = r.acknowledge(ctx, tx, notificationID, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.metrics.RecordAcknowledgement(string(result.Status), result.Promoted)
	r.logger.Debug("Notification acknowledged",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.Int64("notification_id", notificationID),
		zap.String("status", string(result.Status)),
		zap.Bool("promoted", result.Promoted))

	if result.Promoted {
		r.logger.Info("Broadcast promoted to read",
			zap.String("tenant_id", tenantID),
			zap.Int64("notification_id", notificationID))
	}

	return result, nil
}

// AcknowledgeAll acknowledges every notification that is unread for userID,
// in one session, and returns how many changed state.
func (r *Reconciler) AcknowledgeAll(ctx context.Context, tenantID, userID string) (int, error) {
	if userID == "" {
		return 0, apperrors.InvalidArgument("user id is required")
	}

	var results []*model.AckResult
	err := r.sessions.WithSession(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		user, err := r.lookupUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		// Newest first: row locks are always taken in the same order.
		unread, err := r.store.ListVisible(ctx, tx, store.VisibilityFilter{
			UserID:            user.UserID,
			IncludeBroadcasts: r.audience.Includes(user.Role),
			Status:            model.StatusUnread,
		})
		if err != nil {
			return err
		}

		results = make([]*model.AckResult, 0, len(unread))
		for _, view := range unread {
			result, err := r.acknowledge(ctx, tx, view.NotificationID, user)
			if err != nil {
				return err
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, result := range results {
		r.metrics.RecordAcknowledgement(string(result.Status), result.Promoted)
		if result.Status == model.AckStatusRead {
			changed++
		}
	}

	r.logger.Info("Notifications acknowledged",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.Int("changed", changed))

	return changed, nil
}

func (r *Reconciler) lookupUser(ctx context.Context, db store.DBTX, userID string) (*model.User, error) {
	user, err := r.store.GetUser(ctx, db, userID)
	if err != nil {
		return nil, notFoundAs(err, fmt.Sprintf("user %s not found", userID))
	}
	return user, nil
}

// acknowledge runs one acknowledgment. The notification row stays locked
// until the session ends, so concurrent acknowledgers of the same broadcast
// are serialized and every count below sees all committed receipts.
func (r *Reconciler) acknowledge(ctx context.Context, db store.DBTX, notificationID int64, user *model.User) (*model.AckResult, error) {
	n, err := r.store.GetNotificationForUpdate(ctx, db, notificationID)
	if err != nil {
		return nil, notFoundAs(err, fmt.Sprintf("notification %d not found", notificationID))
	}

	result := &model.AckResult{NotificationID: notificationID, Status: model.AckStatusAlreadyRead}

	if !n.IsBroadcast() {
		if !n.AddressedTo(user.UserID) {
			return nil, apperrors.Forbidden("notification is addressed to another user")
		}
		if n.IsRead {
			return result, nil
		}
		if err := r.store.MarkRead(ctx, db, notificationID); err != nil {
			return nil, err
		}
		result.Status = model.AckStatusRead
		return result, nil
	}

	if !r.audience.Includes(user.Role) {
		return nil, apperrors.Forbidden("user is not in the broadcast audience")
	}
	if n.IsRead {
		return result, nil
	}

	inserted, err := r.store.InsertReadReceipt(ctx, db, notificationID, user.UserID)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return result, nil
	}
	result.Status = model.AckStatusRead

	total, err := r.store.CountAudience(ctx, db, r.audience)
	if err != nil {
		return nil, err
	}
	acknowledged, err := r.store.CountAcknowledged(ctx, db, notificationID, r.audience)
	if err != nil {
		return nil, err
	}

	if total > 0 && acknowledged >= total {
		if err := r.store.MarkRead(ctx, db, notificationID); err != nil {
			return nil, err
		}
		if _, err := r.store.DeleteReadReceipts(ctx, db, notificationID); err != nil {
			return nil, err
		}
		result.Promoted = true
	}

	return result, nil
}
