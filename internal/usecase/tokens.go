package usecase

import (
	"fmt"
	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TokenEstimator approximates token counts for prefix-growth logging. The
// upstream model's tokenizer is not available locally, so counts are
// estimates, good enough to watch a turn approach the context window.
type TokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTokenEstimator loads the named tiktoken encoding (e.g. "cl100k_base").
func NewTokenEstimator(encoding string) (*TokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &TokenEstimator{enc: enc}, nil
}

// MaybeNewTokenEstimator returns a TokenEstimator, or nil when the encoding
// cannot be loaded (the estimator is optional; the relay runs without it).
func MaybeNewTokenEstimator(encoding string, logger *slog.Logger) *TokenEstimator {
	if encoding == "" {
		return nil
	}
	est, err := NewTokenEstimator(encoding)
	if err != nil {
		logger.Warn("token estimates disabled", "error", err)
		return nil
	}
	return est
}

// Count returns the approximate token count of s.
func (t *TokenEstimator) Count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}
