package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	execadapter "toolseek/internal/adapter/exec"
	"toolseek/internal/domain"
)

// scriptedUpstream plays back one fixed delta sequence per ChatStream call
// and records every request it receives.
type scriptedUpstream struct {
	mu       sync.Mutex
	scripts  [][]domain.StreamDelta
	calls    int
	requests []domain.ChatRequest
	err      error // returned on stream initiation when set
}

func (s *scriptedUpstream) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return nil, errors.New("not used by the tool loop")
}

func (s *scriptedUpstream) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.calls >= len(s.scripts) {
		return nil, errors.New("scripted upstream exhausted")
	}
	deltas := s.scripts[s.calls]
	s.calls++

	ch := make(chan domain.StreamDelta, len(deltas))
	for _, d := range deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func (s *scriptedUpstream) Name() string { return "scripted" }

// fakeExec returns canned outputs and records executed sources.
type fakeExec struct {
	mu      sync.Mutex
	outputs []string
	runs    []string
}

func (f *fakeExec) NewNamespace() (domain.ExecNamespace, error) { return &fakeNamespace{p: f}, nil }
func (f *fakeExec) Name() string                                { return "fake" }

type fakeNamespace struct{ p *fakeExec }

func (n *fakeNamespace) Run(ctx context.Context, source string) string {
	n.p.mu.Lock()
	defer n.p.mu.Unlock()
	n.p.runs = append(n.p.runs, source)
	if len(n.p.runs) <= len(n.p.outputs) {
		return n.p.outputs[len(n.p.runs)-1]
	}
	return "(no output)"
}

func (n *fakeNamespace) Close() {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func reasoning(parts ...string) []domain.StreamDelta {
	deltas := make([]domain.StreamDelta, 0, len(parts))
	for _, p := range parts {
		deltas = append(deltas, domain.StreamDelta{Reasoning: p})
	}
	return deltas
}

func collect(t *testing.T, ch <-chan domain.StreamDelta) (reasoningText, contentText string, final domain.StreamDelta) {
	t.Helper()
	for d := range ch {
		reasoningText += d.Reasoning
		contentText += d.Content
		final = d
	}
	return reasoningText, contentText, final
}

func userTurn(content string) domain.ChatRequest {
	return domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: content}},
		Stream:   true,
	}
}

func TestRunTurnExecutesCodeBlockOnce(t *testing.T) {
	upstream := &scriptedUpstream{scripts: [][]domain.StreamDelta{
		reasoning(
			"I should compute this.\n",
			"<code>\nfmt.Println(6 * 7)\n</co", // closing marker split across deltas
			"de>",
		),
		append(reasoning("So the answer is 42.\n", "</think>"), domain.StreamDelta{Done: true}),
		{{Content: "The answer is **42**."}, {Done: true}},
	}}
	exec := &fakeExec{outputs: []string{"42"}}

	o := New(Deps{LLM: upstream, Exec: exec, Logger: testLogger()})
	reasoningText, contentText, final := collect(t, o.RunTurn(context.Background(), userTurn("What is 6*7?")))

	require.NoError(t, final.Err)
	assert.True(t, final.Done)

	want := "I should compute this.\n" +
		"<code>\nfmt.Println(6 * 7)\n</code>\n<output>\n42\n</output>\n" +
		"So the answer is 42.\n"
	assert.Equal(t, want, reasoningText)
	assert.Equal(t, "The answer is **42**.", contentText)

	// The block ran exactly once despite two restarts afterwards.
	require.Len(t, exec.runs, 1)
	assert.Contains(t, exec.runs[0], "6 * 7")

	// The client never sees the seed example or the end marker.
	assert.NotContains(t, reasoningText, "1 + 1")
	assert.NotContains(t, reasoningText, "</think>")
}

func TestRunTurnPrefixGrowsAcrossRestarts(t *testing.T) {
	upstream := &scriptedUpstream{scripts: [][]domain.StreamDelta{
		reasoning("Check:\n<code>\n2 + 2\n</code>"),
		append(reasoning("</think>"), domain.StreamDelta{Done: true}),
		{{Content: "4."}, {Done: true}},
	}}
	exec := &fakeExec{outputs: []string{"4"}}

	o := New(Deps{LLM: upstream, Exec: exec, Logger: testLogger()})
	_, _, final := collect(t, o.RunTurn(context.Background(), userTurn("2+2?")))
	require.NoError(t, final.Err)

	require.Len(t, upstream.requests, 3)
	for i, req := range upstream.requests {
		last := req.Messages[len(req.Messages)-1]
		assert.True(t, last.Prefix, "request %d continuation flag", i)
		assert.Equal(t, domain.RoleAssistant, last.Role)

		// The instruction rides on the user message, not a system message.
		assert.Contains(t, req.Messages[0].Content, "2+2?")
		assert.Contains(t, req.Messages[0].Content, "<code>")
	}

	first := upstream.requests[0].Messages[len(upstream.requests[0].Messages)-1].Content
	second := upstream.requests[1].Messages[len(upstream.requests[1].Messages)-1].Content
	third := upstream.requests[2].Messages[len(upstream.requests[2].Messages)-1].Content

	assert.True(t, strings.HasPrefix(second, first), "prefix only grows")
	assert.True(t, strings.HasPrefix(third, second), "prefix only grows")
	assert.Contains(t, second, "<output>\n4\n</output>")
	assert.True(t, strings.HasSuffix(third, "</think>"), "final restart carries the closed reasoning")
}

func TestRunTurnNoDuplicateDelivery(t *testing.T) {
	upstream := &scriptedUpstream{scripts: [][]domain.StreamDelta{
		reasoning("alpha ", "<code>\nx\n</code>"),
		reasoning("beta ", "<code>\ny\n</code>"),
		append(reasoning("gamma", "</think>"), domain.StreamDelta{Done: true}),
		{{Content: "done"}, {Done: true}},
	}}
	exec := &fakeExec{outputs: []string{"one", "two"}}

	o := New(Deps{LLM: upstream, Exec: exec, Logger: testLogger()})
	reasoningText, contentText, final := collect(t, o.RunTurn(context.Background(), userTurn("go")))
	require.NoError(t, final.Err)

	for _, marker := range []string{"alpha", "beta", "gamma", "one", "two"} {
		assert.Equal(t, 1, strings.Count(reasoningText, marker), "segment %q delivered exactly once", marker)
	}
	assert.Equal(t, "done", contentText)
	require.Len(t, exec.runs, 2)
}

func TestRunTurnUpstreamInitiationError(t *testing.T) {
	upstream := &scriptedUpstream{err: domain.ErrProviderError}
	o := New(Deps{LLM: upstream, Exec: &fakeExec{}, Logger: testLogger()})

	var errDeltas int
	var lastErr error
	for d := range o.RunTurn(context.Background(), userTurn("hi")) {
		if d.Err != nil {
			errDeltas++
			lastErr = d.Err
		}
	}
	assert.Equal(t, 1, errDeltas, "exactly one error delta")
	assert.ErrorIs(t, lastErr, domain.ErrProviderError)
}

func TestRunTurnMidStreamErrorDoesNotRestart(t *testing.T) {
	upstream := &scriptedUpstream{scripts: [][]domain.StreamDelta{
		{
			{Reasoning: "partial "},
			{Done: true, Err: errors.New("connection reset")},
		},
	}}
	o := New(Deps{LLM: upstream, Exec: &fakeExec{}, Logger: testLogger()})

	reasoningText, _, final := collect(t, o.RunTurn(context.Background(), userTurn("hi")))
	assert.Equal(t, "partial ", reasoningText)
	require.Error(t, final.Err)
	assert.Equal(t, 1, upstream.calls, "no restart after an upstream error")
}

func TestRunTurnMaxRestarts(t *testing.T) {
	block := reasoning("thinking\n<code>\nloop()\n</code>")
	upstream := &scriptedUpstream{scripts: [][]domain.StreamDelta{block, block, block}}
	o := New(Deps{LLM: upstream, Exec: &fakeExec{}, Logger: testLogger(), MaxRestarts: 2})

	_, _, final := collect(t, o.RunTurn(context.Background(), userTurn("hi")))
	require.Error(t, final.Err)
	assert.ErrorIs(t, final.Err, domain.ErrMaxRestarts)
}

func TestRunTurnReasoningEndsWithoutMarker(t *testing.T) {
	upstream := &scriptedUpstream{scripts: [][]domain.StreamDelta{
		append(reasoning("just thinking, no tools, trailing <cod"), domain.StreamDelta{Done: true}),
	}}
	o := New(Deps{LLM: upstream, Exec: &fakeExec{}, Logger: testLogger()})

	reasoningText, _, final := collect(t, o.RunTurn(context.Background(), userTurn("hi")))
	require.NoError(t, final.Err)
	assert.True(t, final.Done)
	// The held-back partial marker degrades to plain text at end of stream.
	assert.Equal(t, "just thinking, no tools, trailing <cod", reasoningText)
}

func TestRunTurnMetrics(t *testing.T) {
	upstream := &scriptedUpstream{scripts: [][]domain.StreamDelta{
		reasoning("x\n<code>\n1\n</code>"),
		append(reasoning("</think>"), domain.StreamDelta{Done: true}),
		{{Content: "ok"}, {Done: true}},
	}}
	o := New(Deps{LLM: upstream, Exec: &fakeExec{outputs: []string{"1"}}, Logger: testLogger()})

	_, _, final := collect(t, o.RunTurn(context.Background(), userTurn("hi")))
	require.NoError(t, final.Err)

	m := o.Metrics()
	assert.Equal(t, int64(1), m.Turns)
	assert.Equal(t, int64(1), m.Executions)
	assert.Equal(t, int64(2), m.Restarts)
	assert.Equal(t, int64(0), m.UpstreamErrors)
}

func TestRunTurnEndToEndWithInterpreter(t *testing.T) {
	upstream := &scriptedUpstream{scripts: [][]domain.StreamDelta{
		reasoning("Let me compute it.\n", "<code>\n6 * 7\n</code>"),
		append(reasoning("The product is 42.\n", "</think>"), domain.StreamDelta{Done: true}),
		{{Content: "6*7 = 42."}, {Done: true}},
	}}
	exec := execadapter.NewProvider(0, testLogger())

	o := New(Deps{LLM: upstream, Exec: exec, Logger: testLogger()})
	reasoningText, contentText, final := collect(t, o.RunTurn(context.Background(), userTurn("What is 6*7?")))

	require.NoError(t, final.Err)
	assert.Contains(t, reasoningText, "<output>\n42\n</output>")
	assert.Equal(t, "6*7 = 42.", contentText)
	assert.Equal(t, 1, strings.Count(reasoningText, "<output>"), "output block delivered exactly once")
	assert.Equal(t, 1, strings.Count(reasoningText, "The product is 42."), "no duplicated characters")
}

func TestRunTurnNamespacePersistsAcrossRestarts(t *testing.T) {
	upstream := &scriptedUpstream{scripts: [][]domain.StreamDelta{
		reasoning("First define.\n<code>\na := 21\n</code>"),
		reasoning("Then use it.\n<code>\na * 2\n</code>"),
		append(reasoning("</think>"), domain.StreamDelta{Done: true}),
		{{Content: "42"}, {Done: true}},
	}}
	exec := execadapter.NewProvider(0, testLogger())

	o := New(Deps{LLM: upstream, Exec: exec, Logger: testLogger()})
	reasoningText, _, final := collect(t, o.RunTurn(context.Background(), userTurn("double 21")))

	require.NoError(t, final.Err)
	// The variable defined in the first block is visible in the second.
	assert.Contains(t, reasoningText, "<output>\n42\n</output>")
}
