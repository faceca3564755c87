package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/middleware"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/model"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/service"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/store"
)

type MockNotifier struct{ mock.Mock }

func (m *MockNotifier) NotifyAll(ctx context.Context, tenantID string, events []model.Event) ([]int64, error) {
	args := m.Called(ctx, tenantID, events)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type MockReconciler struct{ mock.Mock }

func (m *MockReconciler) Acknowledge(ctx context.Context, tenantID string, notificationID int64, userID string) (*model.AckResult, error) {
	args := m.Called(ctx, tenantID, notificationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AckResult), args.Error(1)
}

func (m *MockReconciler) AcknowledgeAll(ctx context.Context, tenantID, userID string) (int, error) {
	args := m.Called(ctx, tenantID, userID)
	return args.Int(0), args.Error(1)
}

type MockQuerier struct{ mock.Mock }

func (m *MockQuerier) List(ctx context.Context, query model.ListQuery) (*model.NotificationPage, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NotificationPage), args.Error(1)
}

func (m *MockQuerier) UnreadCount(ctx context.Context, tenantID, userID string) (int64, error) {
	args := m.Called(ctx, tenantID, userID)
	return args.Get(0).(int64), args.Error(1)
}

type handlerFixture struct {
	notifier   *MockNotifier
	reconciler *MockReconciler
	query      *MockQuerier
	router     *mux.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		notifier:   new(MockNotifier),
		reconciler: new(MockReconciler),
		query:      new(MockQuerier),
	}
	logger := zap.NewNop()
	idem := service.NewIdempotencyService(store.NewMemoryIdempotencyStore(), 0, logger)
	h := NewHandlers(f.notifier, f.reconciler, f.query, idem, apperrors.NewHandler(logger), logger)

	f.router = mux.NewRouter()
	f.router.HandleFunc("/v1/notifications", h.CreateNotification).Methods(http.MethodPost)
	f.router.HandleFunc("/v1/notifications", h.ListNotifications).Methods(http.MethodGet)
	f.router.HandleFunc("/v1/notifications/unread-count", h.UnreadCount).Methods(http.MethodGet)
	f.router.HandleFunc("/v1/notifications/read-all", h.AcknowledgeAll).Methods(http.MethodPost)
	f.router.HandleFunc("/v1/notifications/{id}/read", h.AcknowledgeNotification).Methods(http.MethodPost)
	return f
}

func (f *handlerFixture) do(method, target, body string, caller *middleware.Principal, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if caller != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), *caller))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

var (
	adminCaller = &middleware.Principal{TenantID: "acme", UserID: "admin", Role: model.RoleAdmin}
	userCaller  = &middleware.Principal{TenantID: "acme", UserID: "u1", Role: model.RoleSupervisor}
)

func TestCreateNotification_Broadcast(t *testing.T) {
	f := newHandlerFixture(t)
	f.notifier.On("NotifyAll", mock.Anything, "acme", mock.MatchedBy(func(events []model.Event) bool {
		return len(events) == 1 && events[0].Kind == model.EventBroadcast && events[0].ActorID == "admin"
	})).Return([]int64{7}, nil).Once()

	w := f.do(http.MethodPost, "/v1/notifications",
		`{"kind":"broadcast","title":"New Form Assigned","message":"all"}`, adminCaller, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"notification_ids":[7]}`, w.Body.String())
	f.notifier.AssertExpectations(t)
}

func TestCreateNotification_BulkIndividual(t *testing.T) {
	f := newHandlerFixture(t)
	f.notifier.On("NotifyAll", mock.Anything, "acme", mock.MatchedBy(func(events []model.Event) bool {
		return len(events) == 2 && events[0].TargetUserID == "u2" && events[1].TargetUserID == "u3"
	})).Return([]int64{8, 9}, nil).Once()

	w := f.do(http.MethodPost, "/v1/notifications",
		`{"kind":"individual","user_ids":["u2","u3"],"title":"t","message":"m"}`, userCaller, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"notification_ids":[8,9]}`, w.Body.String())
}

func TestCreateNotification_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		caller   *middleware.Principal
		wantCode int
	}{
		{"non-admin broadcast", `{"kind":"broadcast","title":"t","message":"m"}`, userCaller, http.StatusForbidden},
		{"malformed json", `{"kind":`, adminCaller, http.StatusBadRequest},
		{"unknown field", `{"kind":"broadcast","title":"t","message":"m","audience":"all"}`, adminCaller, http.StatusBadRequest},
		{"both target forms", `{"kind":"individual","user_id":"u2","user_ids":["u3"],"title":"t","message":"m"}`, adminCaller, http.StatusBadRequest},
		{"no caller", `{"kind":"broadcast","title":"t","message":"m"}`, nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			w := f.do(http.MethodPost, "/v1/notifications", tt.body, tt.caller, nil)
			assert.Equal(t, tt.wantCode, w.Code)
			f.notifier.AssertNotCalled(t, "NotifyAll", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateNotification_ServiceError(t *testing.T) {
	f := newHandlerFixture(t)
	f.notifier.On("NotifyAll", mock.Anything, "acme", mock.Anything).
		Return(nil, apperrors.TenantUnavailable("no database connection available", nil))

	w := f.do(http.MethodPost, "/v1/notifications",
		`{"kind":"individual","user_id":"u2","title":"t","message":"m"}`, userCaller, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "TENANT_UNAVAILABLE")
}

func TestCreateNotification_IdempotentReplay(t *testing.T) {
	f := newHandlerFixture(t)
	f.notifier.On("NotifyAll", mock.Anything, "acme", mock.Anything).Return([]int64{11}, nil).Once()

	body := `{"kind":"individual","user_id":"u2","title":"t","message":"m"}`
	headers := map[string]string{HeaderIdempotencyKey: "retry-1"}

	first := f.do(http.MethodPost, "/v1/notifications", body, userCaller, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(HeaderIdempotentReplay))

	second := f.do(http.MethodPost, "/v1/notifications", body, userCaller, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderIdempotentReplay))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	conflict := f.do(http.MethodPost, "/v1/notifications",
		`{"kind":"individual","user_id":"u3","title":"t","message":"m"}`, userCaller, headers)
	assert.Equal(t, http.StatusBadRequest, conflict.Code)

	f.notifier.AssertNumberOfCalls(t, "NotifyAll", 1)
}

func TestListNotifications(t *testing.T) {
	f := newHandlerFixture(t)
	page := &model.NotificationPage{
		Items: []*model.NotificationView{
			model.NewNotificationView(model.Notification{NotificationID: 3, Title: "t", Message: "m"}, nil, true),
		},
		Pagination: model.NewPagination(1, 0, 5),
	}
	f.query.On("List", mock.Anything, model.ListQuery{
		TenantID: "acme", UserID: "u1", Role: model.RoleSupervisor, Status: "unread", Page: 0, Limit: 5,
	}).Return(page, nil)

	w := f.do(http.MethodGet, "/v1/notifications?status=unread&limit=5", "", userCaller, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Notifications []map[string]interface{} `json:"notifications"`
		Pagination    model.Pagination         `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, "read_by_viewer", body.Notifications[0]["read_state"])
	assert.Equal(t, true, body.Notifications[0]["is_read"])
	assert.Equal(t, 1, body.Pagination.TotalPages)
}

func TestListNotifications_BadParams(t *testing.T) {
	f := newHandlerFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/notifications?page=abc", "", userCaller, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/notifications?limit=x", "", userCaller, nil).Code)

	f.query.On("List", mock.Anything, mock.Anything).Return(nil, apperrors.InvalidArgument("limit must be between 1 and 100"))
	w := f.do(http.MethodGet, "/v1/notifications?limit=500", "", userCaller, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "limit must be between 1 and 100")
}

func TestUnreadCount(t *testing.T) {
	f := newHandlerFixture(t)
	f.query.On("UnreadCount", mock.Anything, "acme", "u1").Return(int64(4), nil)

	w := f.do(http.MethodGet, "/v1/notifications/unread-count", "", userCaller, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unread_count":4}`, w.Body.String())
}

func TestAcknowledgeNotification(t *testing.T) {
	f := newHandlerFixture(t)
	f.reconciler.On("Acknowledge", mock.Anything, "acme", int64(12), "u1").
		Return(&model.AckResult{NotificationID: 12, Status: model.AckStatusRead, Promoted: true}, nil)
	f.reconciler.On("Acknowledge", mock.Anything, "acme", int64(13), "u1").
		Return(nil, apperrors.Forbidden("notification is addressed to another user"))
	f.reconciler.On("Acknowledge", mock.Anything, "acme", int64(14), "u1").
		Return(nil, apperrors.NotFound("notification 14 not found"))

	w := f.do(http.MethodPost, "/v1/notifications/12/read", "", userCaller, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notification_id":12,"status":"READ","promoted":true}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/v1/notifications/13/read", "", userCaller, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/v1/notifications/14/read", "", userCaller, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/notifications/abc/read", "", userCaller, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/notifications/0/read", "", userCaller, nil).Code)
}

func TestAcknowledgeAll(t *testing.T) {
	f := newHandlerFixture(t)
	f.reconciler.On("AcknowledgeAll", mock.Anything, "acme", "u1").Return(3, nil)

	w := f.do(http.MethodPost, "/v1/notifications/read-all", "", userCaller, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":3}`, w.Body.String())
}
