package tools

import (
	"context"

	"github.com/google/uuid"
)

// sessionIDKey is an unexported context key for zero-allocation type safety.
type sessionIDKey struct{}

// SessionIDFromContext retrieves the active session identity from context.
// Returns uuid.Nil if not set.
// CSV tools read it to resolve dataset names against the session's resources.
func SessionIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(sessionIDKey{}).(uuid.UUID)
	return id
}

// ContextWithSessionID stores the active session identity in context.
// The agent injects it before each tool-call round so that tools only see
// resources attached to the session being executed.
func ContextWithSessionID(ctx context.Context, sessionID uuid.UUID) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}
