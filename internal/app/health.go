package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"wazmeow/internal/domain"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                `json:"status"`
	Service   string                `json:"service"`
	Version   string                `json:"version"`
	Timestamp time.Time             `json:"timestamp"`
	Uptime    string                `json:"uptime"`
	Sessions  map[domain.Status]int `json:"sessions"`
}

type sessionLister interface {
	List() []domain.SessionInfo
}

type pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness checks
type HealthHandler struct {
	startTime time.Time
	version   string
	sessions  sessionLister
	db        pinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, sessions sessionLister, db pinger) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		version:   version,
		sessions:  sessions,
		db:        db,
	}
}

// Register mounts /health, /ready and /live on mux
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ready", h.Ready)
	mux.HandleFunc("/live", h.Live)
}

// Health reports uptime and the number of sessions per status
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	counts := make(map[domain.Status]int)
	for _, info := range h.sessions.List() {
		counts[info.Status]++
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "wazmeow",
		Version:   h.version,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Sessions:  counts,
	})
}

// Ready fails while the database is unreachable
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"checks": map[string]string{"database": err.Error()},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": map[string]string{"database": "ok"},
	})
}

// Live handles the liveness check
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
