package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/talq0/talq/internal/log"
)

// DB is the subset of pgxpool.Pool the Postgres store needs.
// Defined by the consumer so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores one snapshot row per thread key in the checkpoints table.
// Save is a single-row UPSERT, so replacement is atomic.
//
// Postgres is safe for concurrent use by multiple goroutines.
type Postgres struct {
	db     DB
	logger log.Logger
}

// NewPostgres creates a Postgres-backed checkpoint store.
func NewPostgres(db DB, logger log.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

var _ Store = (*Postgres)(nil)

// Load returns the latest snapshot for threadKey, or an empty state when the
// thread has no checkpoint yet.
func (p *Postgres) Load(ctx context.Context, threadKey string) (*State, error) {
	var raw []byte
	err := p.db.QueryRow(ctx,
		`SELECT state FROM checkpoints WHERE thread_key = $1`, threadKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading thread %s: %v", ErrIO, threadKey, err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: decoding thread %s: %v", ErrIO, threadKey, err)
	}

	p.logger.Debug("loaded checkpoint", "thread_key", threadKey, "turns", len(state.Messages))
	return &state, nil
}

// Save atomically replaces the snapshot for threadKey.
func (p *Postgres) Save(ctx context.Context, threadKey string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: encoding thread %s: %v", ErrIO, threadKey, err)
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO checkpoints (thread_key, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (thread_key)
		DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		threadKey, raw)
	if err != nil {
		return fmt.Errorf("%w: saving thread %s: %v", ErrIO, threadKey, err)
	}

	p.logger.Debug("saved checkpoint", "thread_key", threadKey, "turns", len(state.Messages))
	return nil
}

// Delete removes the snapshot for threadKey. Deleting an absent thread is not
// an error.
func (p *Postgres) Delete(ctx context.Context, threadKey string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM checkpoints WHERE thread_key = $1`, threadKey)
	if err != nil {
		return fmt.Errorf("%w: deleting thread %s: %v", ErrIO, threadKey, err)
	}
	return nil
}
