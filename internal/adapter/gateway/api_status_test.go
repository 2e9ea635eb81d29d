package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolseek/internal/usecase"
)

func TestStatusEndpoint(t *testing.T) {
	turns := &fakeTurns{metrics: usecase.MetricsSnapshot{Turns: 3, Executions: 5, Restarts: 7}}
	s := newTestServer(turns, &fakeProvider{})
	s.deps.Breaker = &fakeBreaker{
		state:  gobreaker.StateClosed,
		counts: gobreaker.Counts{Requests: 10, TotalFailures: 2, ConsecutiveFailures: 1},
	}

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest("GET", "/api/v1/status", nil))

	require.Equal(t, 200, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "toolseek", resp.Relay.Name)
	assert.Equal(t, "test", resp.Relay.Version)
	assert.Equal(t, "fake", resp.Upstream.Provider)
	assert.Equal(t, "closed", resp.Upstream.CircuitState)
	assert.Equal(t, uint32(10), resp.Upstream.Requests)
	assert.Equal(t, int64(3), resp.Turns.Turns)
	assert.Equal(t, int64(5), resp.Turns.Executions)
	assert.Equal(t, int64(7), resp.Turns.Restarts)
}

func TestStatusEndpointBreakerDisabled(t *testing.T) {
	s := newTestServer(&fakeTurns{}, &fakeProvider{})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest("GET", "/api/v1/status", nil))

	require.Equal(t, 200, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "disabled", resp.Upstream.CircuitState)
}

func TestStatusEndpointMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeTurns{}, &fakeProvider{})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest("POST", "/api/v1/status", nil))

	assert.Equal(t, 405, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	turns := &fakeTurns{metrics: usecase.MetricsSnapshot{Turns: 4, Executions: 9}}
	s := newTestServer(turns, &fakeProvider{})

	rec := httptest.NewRecorder()
	s.handleMetrics(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "toolseek_turns_total 4"))
	assert.True(t, strings.Contains(body, "toolseek_executions_total 9"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
