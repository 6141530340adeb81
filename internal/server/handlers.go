package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rickgao/livefeed/internal/feedstore"
	"github.com/rickgao/livefeed/internal/model"
	"github.com/rickgao/livefeed/internal/poller"
)

// feedView is the browser-facing shape of a store snapshot.
type feedView struct {
	FeedID         string                 `json:"feed_id"`
	Enabled        bool                   `json:"enabled"`
	Status         model.ConnectionStatus `json:"status"`
	Label          string                 `json:"label"`
	ReconnectCount int                    `json:"reconnect_count"`
	Latest         *model.LivePayload     `json:"latest"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func (s *Server) view(snap feedstore.Snapshot) feedView {
	return feedView{
		FeedID:         s.feed.ID(),
		Enabled:        s.feed.Enabled(),
		Status:         snap.Status,
		Label:          snap.Label(),
		ReconnectCount: snap.ReconnectCount,
		Latest:         snap.Latest,
		UpdatedAt:      snap.UpdatedAt,
	}
}

type healthResponse struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := healthResponse{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	// Check feed
	snap := s.feed.Reader().Snapshot()
	health.Components["feed"] = map[string]any{
		"status":          snap.Status,
		"label":           snap.Label(),
		"enabled":         s.feed.Enabled(),
		"reconnect_count": snap.ReconnectCount,
	}
	if snap.Status == model.StatusGivenUp {
		health.Status = "degraded"
	}

	// Check dashboard poller
	if s.dashboard != nil {
		component := map[string]any{"last_poll": s.dashboard.LastPoll()}
		if err := s.dashboard.LastError(); err != nil {
			component["error"] = err.Error()
			health.Status = "degraded"
		}
		health.Components["dashboard"] = component
	}

	// Check database
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view(s.feed.Reader().Snapshot()))
}

type enabledResponse struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleGetEnabled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, enabledResponse{Enabled: s.feed.Enabled()})
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.URL.Query().Get("value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "value must be true or false")
		return
	}

	s.feed.SetEnabled(enabled)
	s.logger.Info("feed toggled", "feed_id", s.feed.ID(), "enabled", enabled)

	writeJSON(w, http.StatusOK, enabledResponse{Enabled: enabled})
}

type dashboardResponse struct {
	poller.DashboardSnapshot
	Error string `json:"error,omitempty"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.dashboard.Latest()
	if !ok {
		msg := "no dashboard snapshot yet"
		if err := s.dashboard.LastError(); err != nil {
			msg = err.Error()
		}
		writeError(w, http.StatusServiceUnavailable, msg)
		return
	}

	resp := dashboardResponse{DashboardSnapshot: snap}
	if err := s.dashboard.LastError(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
