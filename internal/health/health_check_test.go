package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func healthy() Pinger { return pingFunc(func(context.Context) error { return nil }) }

func TestLivenessHandler(t *testing.T) {
	h := NewHealthChecker(nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "alive", status.Status)
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name        string
		database    Pinger
		idempotency Pinger
		wantCode    int
		wantStatus  string
		wantChecks  map[string]string
	}{
		{
			name:        "all healthy",
			database:    healthy(),
			idempotency: healthy(),
			wantCode:    http.StatusOK,
			wantStatus:  "ready",
			wantChecks:  map[string]string{"database": "healthy", "idempotency_store": "healthy"},
		},
		{
			name:        "database down",
			database:    pingFunc(func(context.Context) error { return errors.New("connection refused") }),
			idempotency: healthy(),
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  "not_ready",
			wantChecks:  map[string]string{"database": "unhealthy: connection refused", "idempotency_store": "healthy"},
		},
		{
			name:       "optional dependency skipped",
			database:   healthy(),
			wantCode:   http.StatusOK,
			wantStatus: "ready",
			wantChecks: map[string]string{"database": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(tt.database, tt.idempotency, zap.NewNop())

			w := httptest.NewRecorder()
			h.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			var status HealthStatus
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, tt.wantChecks, status.Checks)
		})
	}
}
