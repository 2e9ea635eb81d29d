package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/sony/gobreaker/v2"

	"toolseek/internal/domain"
	"toolseek/internal/infra/config"
)

type stubProvider struct {
	err     error
	calls   int
	streams int
}

func (s *stubProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ChatResponse{ID: "ok"}, nil
}

func (s *stubProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	s.streams++
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan domain.StreamDelta, 1)
	ch <- domain.StreamDelta{Done: true}
	close(ch)
	return ch, nil
}

func (s *stubProvider) Name() string { return "stub" }

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubProvider{err: errors.New("boom")}
	cb := NewCircuitBreakerProvider(stub, config.CircuitBreakerConfig{MaxFailures: 3}, slog.Default())

	for i := 0; i < 3; i++ {
		if _, err := cb.Chat(context.Background(), domain.ChatRequest{}); err == nil {
			t.Fatal("expected failure")
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	// Open circuit fails fast without reaching the provider.
	before := stub.calls
	_, err := cb.Chat(context.Background(), domain.ChatRequest{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("want ErrOpenState, got %v", err)
	}
	if stub.calls != before {
		t.Error("open circuit should not call the provider")
	}
}

func TestCircuitBreakerPassesThroughSuccess(t *testing.T) {
	stub := &stubProvider{}
	cb := NewCircuitBreakerProvider(stub, config.CircuitBreakerConfig{}, slog.Default())

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.ID != "ok" {
		t.Errorf("resp.ID = %q", resp.ID)
	}
	if cb.Name() != "stub" {
		t.Errorf("Name = %q", cb.Name())
	}
}

func TestCircuitBreakerStreamInitiation(t *testing.T) {
	stub := &stubProvider{}
	cb := NewCircuitBreakerProvider(stub, config.CircuitBreakerConfig{MaxFailures: 2}, slog.Default())

	ch, err := cb.ChatStream(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	d := <-ch
	if !d.Done {
		t.Error("expected Done delta from stub stream")
	}

	// Failed initiations trip the breaker.
	stub.err = errors.New("connect refused")
	for i := 0; i < 2; i++ {
		if _, err := cb.ChatStream(context.Background(), domain.ChatRequest{}); err == nil {
			t.Fatal("expected failure")
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Errorf("state = %v, want open", cb.State())
	}
}
