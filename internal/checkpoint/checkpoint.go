// Package checkpoint persists conversation state for agent sessions.
//
// A checkpoint is the durable, replaceable snapshot of one thread's full turn
// sequence. The thread key equals the owning session's identifier. Writes
// replace the whole snapshot atomically; there are no partial patches. Reads
// of a missing thread return an empty state so a fresh conversation can start
// without a prior write.
//
// Turns are Genkit ai.Message values. The ai.Part kind field is the explicit
// discriminant between text, media, tool-request and tool-response content,
// and the whole sequence round-trips through JSON losslessly.
package checkpoint

import (
	"context"
	"errors"

	"github.com/firebase/genkit/go/ai"
)

// ErrIO indicates the underlying checkpoint storage failed. Readers degrade
// to an empty conversation on load failures; writers must surface ErrIO as a
// failed execution so a user's turn never vanishes silently.
var ErrIO = errors.New("checkpoint storage failure")

// State is the complete snapshot of one thread's ordered turn sequence.
// It is self-describing: loading it is sufficient to resume execution.
type State struct {
	Messages []*ai.Message `json:"messages"`
}

// Empty reports whether the state carries no turns.
func (s *State) Empty() bool {
	return s == nil || len(s.Messages) == 0
}

// Store is the durable checkpoint contract.
//
// Load returns the latest state for threadKey, or an empty (non-nil) state
// when the thread has never been saved. Save atomically replaces the
// authoritative state for threadKey. Delete removes all persisted state for
// threadKey and succeeds when the thread never existed.
type Store interface {
	Load(ctx context.Context, threadKey string) (*State, error)
	Save(ctx context.Context, threadKey string, state *State) error
	Delete(ctx context.Context, threadKey string) error
}
