package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordSession(t *testing.T) {
	m := NewMetrics()

	m.RecordSession("committed", 10*time.Millisecond)
	m.RecordSession("committed", 20*time.Millisecond)
	m.RecordSession("rolled_back", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("rolled_back")))
}

func TestMetrics_RecordAcknowledgement(t *testing.T) {
	m := NewMetrics()

	m.RecordAcknowledgement("READ", false)
	m.RecordAcknowledgement("READ", true)
	m.RecordAcknowledgement("ALREADY_READ", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Acknowledgements.WithLabelValues("READ")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Promotions))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordSession("committed", time.Millisecond)
		m.RecordSchemaLookup(true)
		m.RecordNotificationCreated("broadcast")
		m.RecordAcknowledgement("READ", true)
		m.RecordIdempotentReplay()
		m.RecordHTTPRequest("GET", "/v1/notifications", 200, time.Millisecond)
		m.RegisterPoolGauges(nil, nil, nil)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RegisterPoolGauges(
		func() float64 { return 3 },
		func() float64 { return 7 },
		func() float64 { return 10 },
	)
	m.RecordNotificationCreated("individual")
	m.RecordHTTPRequest("GET", "/v1/notifications", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "notify_db_pool_acquired_connections 3")
	assert.Contains(t, body, "notify_db_pool_total_connections 10")
	assert.Contains(t, body, `notify_notifications_created_total{kind="individual"} 1`)
	assert.Contains(t, body, `notify_http_requests_total{method="GET",route="/v1/notifications",status="200"} 1`)
}
