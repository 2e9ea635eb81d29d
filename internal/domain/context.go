package domain

import "context"

type ctxKey string

const turnCtxKey ctxKey = "turn_id"

// ContextWithTurnID returns a new context carrying the turn ID (ULID).
func ContextWithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnCtxKey, turnID)
}

// TurnIDFromContext extracts the turn ID from the context.
// Returns empty string if not set.
func TurnIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(turnCtxKey).(string); ok {
		return v
	}
	return ""
}
