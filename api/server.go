// Package api provides the HTTP surface: session and resource management
// plus the SSE chat endpoint.
package api

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"

	"github.com/google/uuid"

	"github.com/talq0/talq/internal/agent"
	"github.com/talq0/talq/internal/checkpoint"
	"github.com/talq0/talq/internal/log"
	"github.com/talq0/talq/internal/resource"
	"github.com/talq0/talq/internal/session"
)

// SessionStore is the persistence surface the handlers need. Satisfied by
// *session.Store.
type SessionStore interface {
	CreateSession(ctx context.Context, name string) (*session.Session, error)
	Session(ctx context.Context, id uuid.UUID) (*session.Session, error)
	ListSessions(ctx context.Context, limit, offset int32) ([]*session.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	AddResource(ctx context.Context, r *session.Resource) (*session.Resource, error)
	ListResources(ctx context.Context, sessionID uuid.UUID) ([]*session.Resource, error)
	DeleteResource(ctx context.Context, id uuid.UUID) (*session.Resource, error)
}

// FileStore ingests and removes stored files. Satisfied by *resource.Store.
type FileStore interface {
	Save(originalName, contentType string, r io.Reader) (*resource.StoredFile, error)
	Fetch(rawURL string) (*resource.StoredFile, error)
	Remove(storedPath string) error
}

// ChatAgent streams an agent execution. Satisfied by *agent.Agent.
type ChatAgent interface {
	StreamMessage(ctx context.Context, sessionID uuid.UUID, text string, images []agent.Image) iter.Seq[agent.Fragment]
}

// Config contains configuration for creating a server.
type Config struct {
	Logger      log.Logger
	Sessions    SessionStore
	Files       FileStore
	Checkpoints checkpoint.Store // conversation state removed with its session
	Agent       ChatAgent

	// MaxUploadBytes caps multipart request bodies. Default: resource.DefaultMaxBytes.
	MaxUploadBytes int64
}

func (cfg Config) validate() error {
	if cfg.Logger == nil {
		return errors.New("api: logger is required")
	}
	if cfg.Sessions == nil {
		return errors.New("api: session store is required")
	}
	if cfg.Files == nil {
		return errors.New("api: file store is required")
	}
	if cfg.Checkpoints == nil {
		return errors.New("api: checkpoint store is required")
	}
	if cfg.Agent == nil {
		return errors.New("api: agent is required")
	}
	return nil
}

// Server is the HTTP server handler.
type Server struct {
	mux            *http.ServeMux
	logger         log.Logger
	sessions       SessionStore
	files          FileStore
	checkpoints    checkpoint.Store
	agent          ChatAgent
	maxUploadBytes int64
}

// NewServer creates a server with all routes configured.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = resource.DefaultMaxBytes
	}

	s := &Server{
		mux:            http.NewServeMux(),
		logger:         cfg.Logger,
		sessions:       cfg.Sessions,
		files:          cfg.Files,
		checkpoints:    cfg.Checkpoints,
		agent:          cfg.Agent,
		maxUploadBytes: cfg.MaxUploadBytes,
	}

	// Health probes stay outside the middleware chain.
	s.mux.HandleFunc("GET /health", health)
	s.mux.HandleFunc("GET /ready", health)

	s.mux.HandleFunc("POST /api/sessions", s.createSession)
	s.mux.HandleFunc("GET /api/sessions", s.listSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.getSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.deleteSession)

	s.mux.HandleFunc("POST /api/sessions/{id}/resources", s.uploadResource)
	s.mux.HandleFunc("POST /api/sessions/{id}/resources/url", s.fetchResource)
	s.mux.HandleFunc("GET /api/sessions/{id}/resources", s.listResources)
	s.mux.HandleFunc("DELETE /api/sessions/{id}/resources/{resourceID}", s.deleteResource)

	s.mux.HandleFunc("POST /api/chat/stream", s.chatStream)

	return s, nil
}

// ServeHTTP implements http.Handler with the Recovery and Logging middleware
// applied. Recovery sits outermost so panics in Logging are caught too.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := RecoveryMiddleware(s.logger)(LoggingMiddleware(s.logger)(s.mux))
	handler.ServeHTTP(w, r)
}

// health reports process liveness.
func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// pathUUID parses the named path segment as a UUID. On failure it writes a
// 400 and returns false.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
