package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"toolseek/internal/usecase"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Relay    RelayStatus             `json:"relay"`
	Upstream UpstreamStatus          `json:"upstream"`
	Turns    usecase.MetricsSnapshot `json:"turns"`
}

// RelayStatus holds relay overview info.
type RelayStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// UpstreamStatus holds upstream provider health info.
type UpstreamStatus struct {
	Provider          string `json:"provider"`
	CircuitState      string `json:"circuit_state"`
	Requests          uint32 `json:"requests"`
	TotalFailures     uint32 `json:"total_failures"`
	ConsecutiveErrors uint32 `json:"consecutive_errors"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		Relay: RelayStatus{
			Name:          "toolseek",
			Version:       s.deps.Version,
			UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		},
		Upstream: UpstreamStatus{
			Provider:     s.deps.LLM.Name(),
			CircuitState: "disabled",
		},
		Turns: s.deps.Turns.Metrics(),
	}
	if s.deps.Breaker != nil {
		counts := s.deps.Breaker.Counts()
		resp.Upstream.CircuitState = s.deps.Breaker.State().String()
		resp.Upstream.Requests = counts.Requests
		resp.Upstream.TotalFailures = counts.TotalFailures
		resp.Upstream.ConsecutiveErrors = counts.ConsecutiveFailures
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
