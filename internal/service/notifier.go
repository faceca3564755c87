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

// Mutation is a business write that runs in the same session as the
// notifications it produces.
type Mutation func(ctx context.Context, tx pgx.Tx) ([]model.Event, error)

// Notifier turns business events into stored notifications
type Notifier struct {
	sessions SessionRunner
	store    store.NotificationStore
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewNotifier creates a new notifier
func NewNotifier(
	sessions SessionRunner,
	notificationStore store.NotificationStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Notifier {
	return &Notifier{
		sessions: sessions,
		store:    notificationStore,
		metrics:  m,
		logger:   logger,
	}
}

// Notify stores one notification in its own session and returns its id
func (n *Notifier) Notify(ctx context.Context, tenantID string, event model.Event) (int64, error) {
	ids, err := n.NotifyAll(ctx, tenantID, []model.Event{event})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// NotifyAll stores every event in one session. Either all rows are written or none.
func (n *Notifier) NotifyAll(ctx context.Context, tenantID string, events []model.Event) ([]int64, error) {
	if len(events) == 0 {
		return nil, apperrors.InvalidArgument("at least one notification is required")
	}
	if err := validateEvents(events); err != nil {
		return nil, err
	}

	return n.NotifyWith(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) ([]model.Event, error) {
		return events, nil
	})
}

// NotifyWith runs mutation and inserts the events it returns in the same
// session. A failure of either rolls back both. A mutation may return no events.
func (n *Notifier) NotifyWith(ctx context.Context, tenantID string, mutation Mutation) ([]int64, error) {
	if mutation == nil {
		return nil, apperrors.InvalidArgument("mutation is required")
	}

	var (
		ids    []int64
		events []model.Event
	)
	err := n.sessions.WithSession(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		events, err = mutation(ctx, tx)
		if err != nil {
			return err
		}
		if err := validateEvents(events); err != nil {
			return err
		}

		ids = make([]int64, 0, len(events))
		for _, event := range events {
			id, err := n.NotifyTx(ctx, tx, event)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		n.logger.Debug("Notification session failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return nil, err
	}

	for i, event := range events {
		n.metrics.RecordNotificationCreated(string(event.Kind))
		n.logger.Info("Notification created",
			zap.String("tenant_id", tenantID),
			zap.Int64("notification_id", ids[i]),
			zap.String("kind", string(event.Kind)),
			zap.String("created_by", event.ActorID))
	}

	return ids, nil
}

// NotifyTx inserts one notification inside a session the caller owns.
func (n *Notifier) NotifyTx(ctx context.Context, db store.DBTX, event model.Event) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, apperrors.InvalidArgument(err.Error())
	}

	if event.Kind == model.EventIndividual {
		if _, err := n.store.GetUser(ctx, db, event.TargetUserID); err != nil {
			return 0, notFoundAs(err, fmt.Sprintf("target user %s not found", event.TargetUserID))
		}
	}

	notification := event.ToNotification()
	if err := n.store.CreateNotification(ctx, db, notification); err != nil {
		return 0, err
	}

	return notification.NotificationID, nil
}

func validateEvents(events []model.Event) error {
	for i, event := range events {
		if err := event.Validate(); err != nil {
			return apperrors.InvalidArgument(fmt.Sprintf("notification %d: %v", i, err))
		}
	}
	return nil
}
