package api

import (
	"net/http"
	"time"

	"github.com/Shaandjain/local-audio-pins/pkg/tracker"
)

// StatsHandler reports provider API telemetry and rough cost totals.
type StatsHandler struct {
	tracker *tracker.Tracker
	started time.Time
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(t *tracker.Tracker) *StatsHandler {
	return &StatsHandler{tracker: t, started: time.Now()}
}

type providerStatsDTO struct {
	APISuccess  int64 `json:"api_success"`
	APIFailures int64 `json:"api_errors"`
	Tokens      int64 `json:"tokens"`
	Characters  int64 `json:"characters"`
}

type statsResponse struct {
	UptimeSeconds int64                       `json:"uptime_seconds"`
	Providers     map[string]providerStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := statsResponse{
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Providers:     make(map[string]providerStatsDTO, len(snapshot)),
	}
	for provider, stats := range snapshot {
		resp.Providers[provider] = providerStatsDTO{
			APISuccess:  stats.APISuccess,
			APIFailures: stats.APIFailures,
			Tokens:      stats.Tokens,
			Characters:  stats.Characters,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
