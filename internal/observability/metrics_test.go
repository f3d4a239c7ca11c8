package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	before := testutil.ToFloat64(paidSessionsTotal)
	RecordPaid()
	if got := testutil.ToFloat64(paidSessionsTotal); got != before+1 {
		t.Fatalf("paid counter: got %v want %v", got, before+1)
	}

	RecordInbound("reply")
	if got := testutil.ToFloat64(inboundMessagesTotal.WithLabelValues("reply")); got < 1 {
		t.Fatalf("inbound counter not incremented: %v", got)
	}

	ConnectionOpened()
	ConnectionOpened()
	ConnectionClosed()
	if got := testutil.ToFloat64(activeConnections); got < 1 {
		t.Fatalf("unexpected active connections: %v", got)
	}
}

func TestMetricsHandlerExposesRegisteredCollectors(t *testing.T) {
	InitMetrics()
	InitMetrics()
	RecordHTTPRequest(http.MethodGet, "/", "200", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ava_http_requests_total") {
		t.Fatal("metrics output missing ava_http_requests_total")
	}
}
