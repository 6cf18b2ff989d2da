package agent

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockThread acquires the per-thread execution lock. A second execution on
// the same thread key fails fast instead of interleaving writes.
// The returned release function must be called when the execution finishes.
func (a *Agent) lockThread(threadKey string) (func(), error) {
	fl := flock.New(filepath.Join(a.lockDir, threadKey+".lock"))

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring execution lock for %s: %w", threadKey, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrExecutionInFlight, threadKey)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			a.logger.Warn("releasing execution lock", "thread_key", threadKey, "error", err)
		}
	}, nil
}
