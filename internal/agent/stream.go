package agent

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
)

// Fragment is one streamed unit of agent output. Exactly one of Content or
// Err is meaningful; a fragment with a non-nil Err is terminal.
type Fragment struct {
	Content string
	Err     error
}

// errStreamStopped signals that the consumer stopped iterating.
var errStreamStopped = errors.New("stream consumer stopped")

// StreamMessage executes one user message against a session and yields text
// fragments as the model produces them.
//
// The sequence is single-pass. Fragments arrive in production order, without
// duplication. A failure yields exactly one terminal fragment carrying the
// error; the sequence then ends. Stopping the iteration early cancels the
// execution and persists nothing.
func (a *Agent) StreamMessage(ctx context.Context, sessionID uuid.UUID, text string, images []Image) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		stopped := false
		_, err := a.ExecuteStream(ctx, sessionID, text, images, func(_ context.Context, fragment string) error {
			if !yield(Fragment{Content: fragment}) {
				stopped = true
				return errStreamStopped
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Fragment{Err: err})
		}
	}
}
