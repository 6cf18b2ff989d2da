package api_test

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talq0/talq/api"
	"github.com/talq0/talq/internal/agent"
	"github.com/talq0/talq/internal/checkpoint"
	"github.com/talq0/talq/internal/log"
	"github.com/talq0/talq/internal/resource"
	"github.com/talq0/talq/internal/session"
)

// stubSessions is an in-memory SessionStore for handler tests.
type stubSessions struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*session.Session
	resources map[uuid.UUID]*session.Resource
	failWith  error // forced error for every call when set
}

func newStubSessions() *stubSessions {
	return &stubSessions{
		sessions:  make(map[uuid.UUID]*session.Session),
		resources: make(map[uuid.UUID]*session.Resource),
	}
}

func (s *stubSessions) CreateSession(_ context.Context, name string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	now := time.Now().UTC()
	sess := &session.Session{ID: uuid.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *stubSessions) Session(_ context.Context, id uuid.UUID) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubSessions) ListSessions(_ context.Context, limit, offset int32) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	all := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	if int(offset) >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if int(limit) < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *stubSessions) DeleteSession(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.sessions[id]; !ok {
		return session.ErrSessionNotFound
	}
	delete(s.sessions, id)
	for rid, r := range s.resources {
		if r.SessionID == id {
			delete(s.resources, rid)
		}
	}
	return nil
}

func (s *stubSessions) AddResource(_ context.Context, r *session.Resource) (*session.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	stored := *r
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now().UTC()
	s.resources[stored.ID] = &stored
	return &stored, nil
}

func (s *stubSessions) ListResources(_ context.Context, sessionID uuid.UUID) ([]*session.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []*session.Resource
	for _, r := range s.resources {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *stubSessions) DeleteResource(_ context.Context, id uuid.UUID) (*session.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	r, ok := s.resources[id]
	if !ok {
		return nil, session.ErrResourceNotFound
	}
	delete(s.resources, id)
	return r, nil
}

// stubFiles records ingestion calls without touching the filesystem.
type stubFiles struct {
	mu       sync.Mutex
	saved    []string // stored paths handed out
	removed  []string
	saveErr  error
	fetchErr error
}

func (f *stubFiles) Save(originalName, _ string, r io.Reader) (*resource.StoredFile, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "/uploads/" + uuid.New().String()
	f.saved = append(f.saved, path)
	return &resource.StoredFile{
		OriginalName: originalName,
		StoredPath:   path,
		MimeType:     "text/csv",
		SizeBytes:    int64(len(data)),
	}, nil
}

func (f *stubFiles) Fetch(rawURL string) (*resource.StoredFile, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "/uploads/" + uuid.New().String()
	f.saved = append(f.saved, path)
	return &resource.StoredFile{
		OriginalName: "remote.csv",
		StoredPath:   path,
		MimeType:     "text/csv",
		SizeBytes:    42,
	}, nil
}

func (f *stubFiles) Remove(storedPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, storedPath)
	return nil
}

// stubAgent replays scripted fragments for every StreamMessage call.
type stubAgent struct {
	fragments []agent.Fragment
	lastText  string
}

func (a *stubAgent) StreamMessage(_ context.Context, _ uuid.UUID, text string, _ []agent.Image) iter.Seq[agent.Fragment] {
	a.lastText = text
	return func(yield func(agent.Fragment) bool) {
		for _, f := range a.fragments {
			if !yield(f) {
				return
			}
		}
	}
}

// fixture bundles a server with its stubs.
type fixture struct {
	server      *api.Server
	sessions    *stubSessions
	files       *stubFiles
	checkpoints *checkpoint.Memory
	agent       *stubAgent
}

func newFixture() (*fixture, error) {
	f := &fixture{
		sessions:    newStubSessions(),
		files:       &stubFiles{},
		checkpoints: checkpoint.NewMemory(),
		agent:       &stubAgent{},
	}
	server, err := api.NewServer(api.Config{
		Logger:      log.NewNop(),
		Sessions:    f.sessions,
		Files:       f.files,
		Checkpoints: f.checkpoints,
		Agent:       f.agent,
	})
	if err != nil {
		return nil, fmt.Errorf("NewServer: %w", err)
	}
	f.server = server
	return f, nil
}
