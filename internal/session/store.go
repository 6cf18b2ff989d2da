package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/talq0/talq/internal/log"
)

// DB is the subset of pgxpool.Pool the store needs.
// Defined by the consumer so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages session and resource persistence.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger log.Logger
}

// New creates a Store. A nil logger defaults to slog.Default().
func New(db DB, logger log.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateSession inserts a new session with the given display name.
func (s *Store) CreateSession(ctx context.Context, name string) (*Session, error) {
	sess := &Session{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO sessions (id, name, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING id, name, created_at, updated_at`,
		uuid.New(), name).
		Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "name", sess.Name)
	return sess, nil
}

// Session retrieves one session by ID.
func (s *Store) Session(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := &Session{}
	err := s.db.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns sessions ordered by updated_at descending.
func (s *Store) ListSessions(ctx context.Context, limit, offset int32) ([]*Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Touch bumps updated_at after an agent execution.
func (s *Store) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE sessions SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching session %s: %w", id, err)
	}
	return nil
}

// DeleteSession removes a session. Resource rows cascade via foreign key; the
// caller is responsible for removing stored files and the conversation
// checkpoint (best-effort, per the cascade contract).
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.logger.Debug("deleted session", "id", id)
	return nil
}

// AddResource inserts a resource row. StoredPath carries a UNIQUE constraint,
// enforcing that storage locations are never reused.
func (s *Store) AddResource(ctx context.Context, r *Resource) (*Resource, error) {
	out := &Resource{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO resources (id, session_id, original_name, stored_path, mime_type, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, session_id, original_name, stored_path, mime_type, size_bytes, created_at`,
		uuid.New(), r.SessionID, r.OriginalName, r.StoredPath, r.MimeType, r.SizeBytes).
		Scan(&out.ID, &out.SessionID, &out.OriginalName, &out.StoredPath, &out.MimeType, &out.SizeBytes, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("adding resource %s: %w", r.OriginalName, err)
	}

	s.logger.Debug("added resource",
		"id", out.ID, "session_id", out.SessionID, "name", out.OriginalName, "bytes", out.SizeBytes)
	return out, nil
}

// Resource retrieves one resource by ID.
func (s *Store) Resource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	r := &Resource{}
	err := s.db.QueryRow(ctx, `
		SELECT id, session_id, original_name, stored_path, mime_type, size_bytes, created_at
		FROM resources WHERE id = $1`, id).
		Scan(&r.ID, &r.SessionID, &r.OriginalName, &r.StoredPath, &r.MimeType, &r.SizeBytes, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting resource %s: %w", id, err)
	}
	return r, nil
}

// ListResources returns a session's resources ordered by creation time.
func (s *Store) ListResources(ctx context.Context, sessionID uuid.UUID) ([]*Resource, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, original_name, stored_path, mime_type, size_bytes, created_at
		FROM resources
		WHERE session_id = $1
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing resources for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	resources := make([]*Resource, 0)
	for rows.Next() {
		r := &Resource{}
		if err := rows.Scan(&r.ID, &r.SessionID, &r.OriginalName, &r.StoredPath, &r.MimeType, &r.SizeBytes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning resource: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating resources: %w", err)
	}
	return resources, nil
}

// DeleteResource removes a resource row and returns the deleted record so the
// caller can remove the underlying file.
func (s *Store) DeleteResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	r := &Resource{}
	err := s.db.QueryRow(ctx, `
		DELETE FROM resources WHERE id = $1
		RETURNING id, session_id, original_name, stored_path, mime_type, size_bytes, created_at`, id).
		Scan(&r.ID, &r.SessionID, &r.OriginalName, &r.StoredPath, &r.MimeType, &r.SizeBytes, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("deleting resource %s: %w", id, err)
	}

	s.logger.Debug("deleted resource", "id", id, "stored_path", r.StoredPath)
	return r, nil
}
