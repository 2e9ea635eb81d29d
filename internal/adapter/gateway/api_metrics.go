package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// handleMetrics serves GET /metrics in Prometheus text format.
// This uses the lightweight text format to avoid pulling in the full prometheus client.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	turns := s.deps.Turns.Metrics()

	fmt.Fprintf(w, "# HELP toolseek_turns_total Total chat turns started.\n")
	fmt.Fprintf(w, "# TYPE toolseek_turns_total counter\n")
	fmt.Fprintf(w, "toolseek_turns_total %d\n", turns.Turns)

	fmt.Fprintf(w, "# HELP toolseek_executions_total Total code blocks executed.\n")
	fmt.Fprintf(w, "# TYPE toolseek_executions_total counter\n")
	fmt.Fprintf(w, "toolseek_executions_total %d\n", turns.Executions)

	fmt.Fprintf(w, "# HELP toolseek_restarts_total Total upstream sub-request restarts.\n")
	fmt.Fprintf(w, "# TYPE toolseek_restarts_total counter\n")
	fmt.Fprintf(w, "toolseek_restarts_total %d\n", turns.Restarts)

	fmt.Fprintf(w, "# HELP toolseek_upstream_errors_total Total failed upstream streams.\n")
	fmt.Fprintf(w, "# TYPE toolseek_upstream_errors_total counter\n")
	fmt.Fprintf(w, "toolseek_upstream_errors_total %d\n", turns.UpstreamErrors)

	if s.deps.Breaker != nil {
		counts := s.deps.Breaker.Counts()
		fmt.Fprintf(w, "# HELP toolseek_upstream_consecutive_failures Consecutive upstream failures seen by the breaker.\n")
		fmt.Fprintf(w, "# TYPE toolseek_upstream_consecutive_failures gauge\n")
		fmt.Fprintf(w, "toolseek_upstream_consecutive_failures %d\n", counts.ConsecutiveFailures)
	}

	fmt.Fprintf(w, "# HELP toolseek_uptime_seconds Seconds since the relay started.\n")
	fmt.Fprintf(w, "# TYPE toolseek_uptime_seconds gauge\n")
	fmt.Fprintf(w, "toolseek_uptime_seconds %.0f\n", time.Since(s.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fmt.Fprintf(w, "# HELP go_goroutines Number of goroutines.\n")
	fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
	fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())

	fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Bytes of allocated heap objects.\n")
	fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
	fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n", mem.Alloc)

	fmt.Fprintf(w, "# HELP go_memstats_sys_bytes Total bytes of memory obtained from the OS.\n")
	fmt.Fprintf(w, "# TYPE go_memstats_sys_bytes gauge\n")
	fmt.Fprintf(w, "go_memstats_sys_bytes %d\n", mem.Sys)
}
