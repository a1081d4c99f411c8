package metrics

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewMetrics_RegistersWithoutPanicking(t *testing.T) {
	// MustRegister panics on a duplicate descriptor, so constructing twice
	// in the same process would be a regression in a metric's Name.
	NewMetrics()
}

func TestHealthStatus_ServeHTTPReportsDegradedWhenFeedDown(t *testing.T) {
	h := NewHealthStatus()
	h.SetFeedConnected(false)
	h.SetSnapshotDBOK(true)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Fatalf("expected 503 when feed is down, got %d", rec.Code)
	}
}

func TestHealthStatus_ServeHTTPReportsHealthyWhenAllOK(t *testing.T) {
	h := NewHealthStatus()
	h.SetFeedConnected(true)
	h.SetSnapshotDBOK(true)
	h.SetLastTickTime(time.Now())
	h.SetActiveSessions(3)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthStatus_SnapshotReturnsACopyNotALiveView(t *testing.T) {
	h := NewHealthStatus()
	h.SetActiveSessions(1)

	snap := h.Snapshot()
	h.SetActiveSessions(2)

	if snap.ActiveSessions != 1 {
		t.Fatalf("expected snapshot to be frozen at 1, got %d", snap.ActiveSessions)
	}
	if h.Snapshot().ActiveSessions != 2 {
		t.Fatalf("expected live status to reflect the update")
	}
}
