package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolseek/internal/domain"
)

type scriptedClient struct {
	deltas   []domain.StreamDelta
	err      error
	requests []domain.ChatRequest
}

func (s *scriptedClient) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return nil, io.EOF
}

func (s *scriptedClient) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan domain.StreamDelta, len(s.deltas))
	for _, d := range s.deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func (s *scriptedClient) Name() string { return "scripted" }

func newTestREPL(client *scriptedClient, input string) (*REPL, *bytes.Buffer) {
	var out bytes.Buffer
	r := NewREPL(client, Options{
		In:     strings.NewReader(input),
		Out:    &out,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return r, &out
}

func TestREPLStreamsReply(t *testing.T) {
	client := &scriptedClient{deltas: []domain.StreamDelta{
		{Reasoning: "thinking hard\n"},
		{Content: "the answer is 4"},
		{Done: true},
	}}
	r, out := newTestREPL(client, "what is 2+2?\n/exit\n")

	require.NoError(t, r.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "ToolSeek CLI")
	assert.Contains(t, text, "thinking hard")
	assert.Contains(t, text, "the answer is 4")
	assert.Contains(t, text, "Bye!")

	require.Len(t, client.requests, 1)
	require.Len(t, client.requests[0].Messages, 1)
	assert.Equal(t, "what is 2+2?", client.requests[0].Messages[0].Content)
	assert.True(t, client.requests[0].Stream)
}

func TestREPLKeepsHistoryAcrossTurns(t *testing.T) {
	client := &scriptedClient{deltas: []domain.StreamDelta{
		{Content: "hello"},
		{Done: true},
	}}
	r, _ := newTestREPL(client, "first\nsecond\n/exit\n")

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, client.requests, 2)
	// Second request carries the first exchange.
	msgs := client.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, "second", msgs[2].Content)
}

func TestREPLClearResetsHistory(t *testing.T) {
	client := &scriptedClient{deltas: []domain.StreamDelta{
		{Content: "hi"},
		{Done: true},
	}}
	r, out := newTestREPL(client, "first\n/clear\nsecond\n/exit\n")

	require.NoError(t, r.Run(context.Background()))

	assert.Contains(t, out.String(), "Context cleared.")
	require.Len(t, client.requests, 2)
	assert.Len(t, client.requests[1].Messages, 1)
}

func TestREPLRequestErrorIsInline(t *testing.T) {
	client := &scriptedClient{err: domain.ErrProviderError}
	r, out := newTestREPL(client, "hello\n/exit\n")

	require.NoError(t, r.Run(context.Background()))

	assert.Contains(t, out.String(), "Request error:")
	// The failed user message is dropped so a retry starts clean.
	require.Len(t, client.requests, 1)
	assert.Len(t, client.requests[0].Messages, 1)
}

func TestREPLUnknownCommand(t *testing.T) {
	r, out := newTestREPL(&scriptedClient{}, "/bogus\n/exit\n")

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "Unknown command: /bogus")
}

func TestREPLHelp(t *testing.T) {
	r, out := newTestREPL(&scriptedClient{}, "/help\n/quit\n")

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "/clear")
	assert.Contains(t, out.String(), "reset conversation")
}
