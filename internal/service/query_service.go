package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/model"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/store"
)

// QueryService serves read-only notification views
type QueryService struct {
	sessions SessionRunner
	store    store.NotificationStore
	audience model.Audience
	logger   *zap.Logger
}

// NewQueryService creates a new query service
func NewQueryService(
	sessions SessionRunner,
	notificationStore store.NotificationStore,
	audience model.Audience,
	logger *zap.Logger,
) *QueryService {
	return &QueryService{
		sessions: sessions,
		store:    notificationStore,
		audience: audience,
		logger:   logger,
	}
}

// List returns one page of the viewer's notifications, newest first. An empty
// Role is looked up in the tenant schema.
func (q *QueryService) List(ctx context.Context, query model.ListQuery) (*model.NotificationPage, error) {
	if err := normalizeListQuery(&query); err != nil {
		return nil, err
	}

	var page *model.NotificationPage
	err := q.sessions.WithSession(ctx, query.TenantID, func(ctx context.Context, tx pgx.Tx) error {
		role := query.Role
		if role == "" {
			user, err := q.store.GetUser(ctx, tx, query.UserID)
			if err != nil {
				return notFoundAs(err, fmt.Sprintf("user %s not found", query.UserID))
			}
			role = user.Role
		}

		filter := q.visibility(query.UserID, role, query.Status)

		total, err := q.store.CountVisible(ctx, tx, filter)
		if err != nil {
			return err
		}

		filter.Limit = query.Limit
		filter.Offset = query.Offset()
		items, err := q.store.ListVisible(ctx, tx, filter)
		if err != nil {
			return err
		}

		page = &model.NotificationPage{
			Items:      items,
			Pagination: model.NewPagination(total, query.Page, query.Limit),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	q.logger.Debug("Listed notifications",
		zap.String("tenant_id", query.TenantID),
		zap.String("user_id", query.UserID),
		zap.Int("page", query.Page),
		zap.Int("items", len(page.Items)),
		zap.Int64("total", page.Pagination.TotalCount))

	return page, nil
}

// UnreadCount counts the notifications that are unread for userID.
func (q *QueryService) UnreadCount(ctx context.Context, tenantID, userID string) (int64, error) {
	if userID == "" {
		return 0, apperrors.InvalidArgument("user id is required")
	}

	var count int64
	err := q.sessions.WithSession(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		user, err := q.store.GetUser(ctx, tx, userID)
		if err != nil {
			return notFoundAs(err, fmt.Sprintf("user %s not found", userID))
		}

		count, err = q.store.CountVisible(ctx, tx, q.visibility(user.UserID, user.Role, model.StatusUnread))
		return err
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// visibility lets audience members see broadcasts in addition to their own
// notifications. Everyone else sees only what is addressed to them.
func (q *QueryService) visibility(userID string, role model.Role, status model.StatusFilter) store.VisibilityFilter {
	return store.VisibilityFilter{
		UserID:            userID,
		IncludeBroadcasts: q.audience.Includes(role),
		Status:            status,
	}
}

func normalizeListQuery(query *model.ListQuery) error {
	if query.UserID == "" {
		return apperrors.InvalidArgument("user id is required")
	}
	if query.Page < 0 {
		return apperrors.InvalidArgument("page must not be negative")
	}
	if query.Limit == 0 {
		query.Limit = model.DefaultPageLimit
	}
	if query.Limit < 1 || query.Limit > model.MaxPageLimit {
		return apperrors.InvalidArgument(fmt.Sprintf("limit must be between 1 and %d", model.MaxPageLimit))
	}

	status, err := model.ParseStatusFilter(string(query.Status))
	if err != nil {
		return apperrors.InvalidArgument(err.Error())
	}
	query.Status = status
	query.Role = model.ParseRole(string(query.Role))
	return nil
}
