// Package session persists chat sessions and their attached tabular
// resources in PostgreSQL.
//
// A session is a named conversation thread; the agent's conversation state is
// stored separately in the checkpoint package under the session's ID as
// thread key. Resources are uploaded or URL-fetched CSV files owned by a
// session; resource rows cascade-delete with their session, and the stored
// file path is unique across all resources and never reused.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// NameMaxLength bounds session display names.
const NameMaxLength = 100

// Session is a named conversation thread.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Resource is a tabular file attached to a session.
type Resource struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	OriginalName string    `json:"original_name"`
	StoredPath   string    `json:"stored_path"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}
