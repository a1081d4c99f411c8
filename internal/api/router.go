// Package api implements the HTTP status surface (spec §6):
// /api/bot/status, /api/health, /api/volatility[/:symbol].
//
// Grounded on the teacher's internal/metrics/metrics.go ServeHTTP/
// Server idiom (JSON-status-endpoint handlers registered on a plain
// http.ServeMux), adapted from a stub router.go that only had a TODO
// list of endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"signalbot/internal/metrics"
	"signalbot/internal/session"
	"signalbot/internal/volatility"
)

// Deps bundles everything the status endpoints read from.
type Deps struct {
	Health     *metrics.HealthStatus
	Sessions   *session.Manager
	Volatility *volatility.Cache
	Stats      *Stats
	StartedAt  time.Time
}

// NewRouter builds the HTTP status API mux (spec §6 "HTTP status
// endpoints").
func NewRouter(deps Deps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/bot/status", deps.handleBotStatus)
	mux.HandleFunc("/api/health", deps.handleHealth)
	mux.HandleFunc("/api/volatility", deps.handleVolatility)
	mux.HandleFunc("/api/volatility/", deps.handleVolatility)
	return mux
}

type volatilityEntry struct {
	Symbol          string  `json:"symbol"`
	VolatilityScore float64 `json:"volatilityScore"`
	IsStable        bool    `json:"isStable"`
	Severity        string  `json:"severity"`
}

func toVolatilityEntry(a volatility.Analysis) volatilityEntry {
	return volatilityEntry{
		Symbol:          a.Symbol,
		VolatilityScore: a.VolatilityScore,
		IsStable:        a.IsStable(),
		Severity:        a.Severity(),
	}
}

// handleBotStatus serves GET /api/bot/status.
func (d Deps) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	active := d.Sessions.ActiveSessions()
	chatIDs := make(map[string]struct{}, len(active))
	for _, s := range active {
		chatIDs[s.ChatID] = struct{}{}
	}

	analyses := d.Volatility.All()
	entries := make([]volatilityEntry, 0, len(analyses))
	for _, a := range analyses {
		entries = append(entries, toVolatilityEntry(a))
	}

	lastVolatilityUpdate := ""
	if t := d.Volatility.LastUpdated(); !t.IsZero() {
		lastVolatilityUpdate = t.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, struct {
		Status               string            `json:"status"`
		UptimeSeconds        int64             `json:"uptimeSeconds"`
		TotalUsers           int               `json:"totalUsers"`
		ActiveSessions       int               `json:"activeSessions"`
		SignalsGenerated     int64             `json:"signalsGenerated"`
		UsersAcceptedTerms   int64             `json:"usersAcceptedTerms"`
		LastVolatilityUpdate string            `json:"lastVolatilityUpdate"`
		VolatilityData       []volatilityEntry `json:"volatilityData"`
	}{
		Status:               "ok",
		UptimeSeconds:        int64(time.Since(d.StartedAt).Seconds()),
		TotalUsers:           len(chatIDs),
		ActiveSessions:       len(active),
		SignalsGenerated:     d.Stats.SignalsGenerated(),
		UsersAcceptedTerms:   d.Stats.UsersAcceptedTerms(),
		LastVolatilityUpdate: lastVolatilityUpdate,
		VolatilityData:       entries,
	})
}

// handleHealth serves GET /api/health.
func (d Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := d.Health.Snapshot()
	status := "healthy"
	if !h.FeedConnected || !h.SnapshotDBOK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
		Uptime    int64  `json:"uptime"`
	}{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    int64(time.Since(h.StartedAt).Seconds()),
	})
}

// handleVolatility serves GET /api/volatility and GET
// /api/volatility/:symbol.
func (d Deps) handleVolatility(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimPrefix(r.URL.Path, "/api/volatility")
	symbol = strings.Trim(symbol, "/")

	if symbol == "" {
		analyses := d.Volatility.All()
		entries := make([]volatilityEntry, 0, len(analyses))
		for _, a := range analyses {
			entries = append(entries, toVolatilityEntry(a))
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	analysis, ok := d.Volatility.Get(symbol)
	if !ok {
		writeJSON(w, http.StatusNotFound, struct {
			Error string `json:"error"`
		}{Error: "unknown symbol"})
		return
	}
	writeJSON(w, http.StatusOK, toVolatilityEntry(analysis))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
