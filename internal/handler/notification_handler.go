// Package handler provides HTTP request handlers for the notification API.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/middleware"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/model"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/service"
)

const (
	maxBodyBytes = 1 << 20

	// HeaderIdempotencyKey lets clients retry create requests safely.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay marks a response served from a stored record.
	HeaderIdempotentReplay = "Idempotent-Replayed"
)

// Notifier creates notifications.
type Notifier interface {
	NotifyAll(ctx context.Context, tenantID string, events []model.Event) ([]int64, error)
}

// Reconciler applies acknowledgments.
type Reconciler interface {
	Acknowledge(ctx context.Context, tenantID string, notificationID int64, userID string) (*model.AckResult, error)
	AcknowledgeAll(ctx context.Context, tenantID, userID string) (int, error)
}

// Querier serves notification views.
type Querier interface {
	List(ctx context.Context, query model.ListQuery) (*model.NotificationPage, error)
	UnreadCount(ctx context.Context, tenantID, userID string) (int64, error)
}

// Idempotency stores create outcomes by Idempotency-Key.
type Idempotency interface {
	Get(ctx context.Context, tenantID, userID, idempotencyKey, requestHash string) (*service.IdempotencyRecord, error)
	Store(ctx context.Context, tenantID, userID, idempotencyKey string, record *service.IdempotencyRecord) error
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	notifier     Notifier
	reconciler   Reconciler
	query        Querier
	idempotency  Idempotency
	errorHandler *apperrors.Handler
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance. idempotency may be nil.
func NewHandlers(
	notifier Notifier,
	reconciler Reconciler,
	query Querier,
	idempotency Idempotency,
	errorHandler *apperrors.Handler,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		notifier:     notifier,
		reconciler:   reconciler,
		query:        query,
		idempotency:  idempotency,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// CreateNotificationRequest is the body of POST /v1/notifications.
type CreateNotificationRequest struct {
	Kind         model.EventKind `json:"kind"`
	UserID       string          `json:"user_id,omitempty"`
	UserIDs      []string        `json:"user_ids,omitempty"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	FormID       *string         `json:"form_id,omitempty"`
	SubmissionID *string         `json:"submission_id,omitempty"`
}

// CreateNotificationResponse lists the ids of the stored notifications.
type CreateNotificationResponse struct {
	NotificationIDs []int64 `json:"notification_ids"`
}

// UnreadCountResponse is the body of GET /v1/notifications/unread-count.
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

// ReadAllResponse is the body of POST /v1/notifications/read-all.
type ReadAllResponse struct {
	Updated int `json:"updated"`
}

// events expands the request into one event per addressed user, or a
// single broadcast.
func (req *CreateNotificationRequest) events(actorID string) []model.Event {
	base := model.Event{
		Kind:         req.Kind,
		Title:        req.Title,
		Message:      req.Message,
		FormID:       req.FormID,
		SubmissionID: req.SubmissionID,
		ActorID:      actorID,
	}

	if len(req.UserIDs) == 0 {
		base.TargetUserID = req.UserID
		return []model.Event{base}
	}

	events := make([]model.Event, 0, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		e := base
		e.TargetUserID = userID
		events = append(events, e)
	}
	return events
}

// CreateNotification handles POST /v1/notifications requests.
func (h *Handlers) CreateNotification(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.errorHandler.WriteValidationError(w, "request body too large or unreadable", requestID)
		return
	}

	var req CreateNotificationRequest
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if req.UserID != "" && len(req.UserIDs) > 0 {
		h.errorHandler.WriteValidationError(w, "user_id and user_ids are mutually exclusive", requestID)
		return
	}
	if req.Kind == model.EventBroadcast && !caller.Role.IsAdmin() {
		h.errorHandler.HandleError(w, r, apperrors.Forbidden("only admins can broadcast"))
		return
	}

	idempotencyKey := r.Header.Get(HeaderIdempotencyKey)
	requestHash := service.Fingerprint(body)
	if idempotencyKey != "" && h.idempotency != nil {
		record, err := h.idempotency.Get(r.Context(), caller.TenantID, caller.UserID, idempotencyKey, requestHash)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		if record != nil {
			w.Header().Set(HeaderIdempotentReplay, "true")
			h.writeJSONResponse(w, http.StatusCreated, CreateNotificationResponse{NotificationIDs: record.NotificationIDs})
			return
		}
	}

	ids, err := h.notifier.NotifyAll(r.Context(), caller.TenantID, req.events(caller.UserID))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if idempotencyKey != "" && h.idempotency != nil {
		record := &service.IdempotencyRecord{NotificationIDs: ids, RequestHash: requestHash}
		if err := h.idempotency.Store(r.Context(), caller.TenantID, caller.UserID, idempotencyKey, record); err != nil {
			// The notifications are already committed.
			h.logger.Warn("Failed to store idempotency record",
				zap.String("request_id", requestID),
				zap.String("tenant_id", caller.TenantID),
				zap.Error(err))
		}
	}

	h.writeJSONResponse(w, http.StatusCreated, CreateNotificationResponse{NotificationIDs: ids})
}

// ListNotifications handles GET /v1/notifications requests.
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}

	params := r.URL.Query()
	page, err := intParam(params.Get("page"), 0)
	if err != nil {
		h.errorHandler.WriteValidationError(w, "page must be an integer", requestID)
		return
	}
	limit, err := intParam(params.Get("limit"), model.DefaultPageLimit)
	if err != nil {
		h.errorHandler.WriteValidationError(w, "limit must be an integer", requestID)
		return
	}

	result, err := h.query.List(r.Context(), model.ListQuery{
		TenantID: caller.TenantID,
		UserID:   caller.UserID,
		Role:     caller.Role,
		Status:   model.StatusFilter(params.Get("status")),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, result)
}

// UnreadCount handles GET /v1/notifications/unread-count requests.
func (h *Handlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}

	count, err := h.query.UnreadCount(r.Context(), caller.TenantID, caller.UserID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, UnreadCountResponse{UnreadCount: count})
}

// AcknowledgeNotification handles POST /v1/notifications/{id}/read requests.
func (h *Handlers) AcknowledgeNotification(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.errorHandler.WriteValidationError(w, "notification id must be a positive integer", r.Header.Get("X-Request-ID"))
		return
	}

	result, err := h.reconciler.Acknowledge(r.Context(), caller.TenantID, id, caller.UserID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, result)
}

// AcknowledgeAll handles POST /v1/notifications/read-all requests.
func (h *Handlers) AcknowledgeAll(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}

	updated, err := h.reconciler.AcknowledgeAll(r.Context(), caller.TenantID, caller.UserID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, ReadAllResponse{Updated: updated})
}

func (h *Handlers) principal(w http.ResponseWriter, r *http.Request) (middleware.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.errorHandler.WriteUnauthorized(w, "missing caller identity", r.Header.Get("X-Request-ID"))
	}
	return p, ok
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// writeJSONResponse writes a JSON response.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
