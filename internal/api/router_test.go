package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signalbot/internal/aggregator"
	"signalbot/internal/metrics"
	"signalbot/internal/session"
	"signalbot/internal/signalengine"
	"signalbot/internal/volatility"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	volCache := volatility.NewCache()
	volCache.Set(volatility.Analysis{Symbol: "EURUSD", VolatilityScore: 0.7, IsVolatile: true})

	agg := aggregator.New()
	engine := signalengine.New(1)
	sessions := session.New(agg, engine, signalengine.Deps{VolCache: volCache}, nil, nil)

	health := metrics.NewHealthStatus()
	health.SetFeedConnected(true)
	health.SetSnapshotDBOK(true)

	return Deps{
		Health:     health,
		Sessions:   sessions,
		Volatility: volCache,
		Stats:      NewStats(),
		StartedAt:  time.Now().Add(-time.Minute),
	}
}

func TestHandleHealth_ReportsHealthyWhenDependenciesOK(t *testing.T) {
	deps := testDeps(t)
	mux := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("expected healthy status, got %q", body.Status)
	}
}

func TestHandleVolatility_UnknownSymbolIs404(t *testing.T) {
	deps := testDeps(t)
	mux := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/volatility/UNKNOWN", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleVolatility_KnownSymbolReturnsAnalysis(t *testing.T) {
	deps := testDeps(t)
	mux := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/volatility/EURUSD", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entry volatilityEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Symbol != "EURUSD" || entry.Severity != "high" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestHandleBotStatus_ReportsActiveSessionsAndVolatilityData(t *testing.T) {
	deps := testDeps(t)
	mux := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/bot/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		ActiveSessions int               `json:"activeSessions"`
		VolatilityData []volatilityEntry `json:"volatilityData"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ActiveSessions != 0 {
		t.Errorf("expected 0 active sessions, got %d", body.ActiveSessions)
	}
	if len(body.VolatilityData) != 1 {
		t.Errorf("expected 1 volatility entry, got %d", len(body.VolatilityData))
	}
}
