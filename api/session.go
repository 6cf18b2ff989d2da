package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/talq0/talq/internal/session"
)

// defaultListLimit is the page size when the client does not specify one.
const defaultListLimit = 50

// maxListLimit caps client-requested page sizes.
const maxListLimit = 200

type createSessionRequest struct {
	Name string `json:"name"`
}

// createSession handles POST /api/sessions.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len([]rune(name)) > session.NameMaxLength {
		writeError(w, http.StatusBadRequest, "name exceeds "+strconv.Itoa(session.NameMaxLength)+" characters")
		return
	}

	sess, err := s.sessions.CreateSession(r.Context(), name)
	if err != nil {
		s.logger.Error("creating session", "error", err)
		writeError(w, http.StatusInternalServerError, "creating session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// listSessions handles GET /api/sessions with limit/offset pagination.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := int32(defaultListLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = int32(n)
	}
	offset := int32(0)
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = int32(n)
	}

	sessions, err := s.sessions.ListSessions(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "listing sessions")
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// getSession handles GET /api/sessions/{id}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	sess, err := s.sessions.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("getting session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "getting session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// deleteSession handles DELETE /api/sessions/{id}. Resource rows cascade
// with the session row; stored files and the conversation checkpoint are
// removed best-effort afterwards.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	resources, err := s.sessions.ListResources(r.Context(), id)
	if err != nil {
		s.logger.Error("listing resources before delete", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "deleting session")
		return
	}

	if err := s.sessions.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("deleting session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "deleting session")
		return
	}

	for _, res := range resources {
		if err := s.files.Remove(res.StoredPath); err != nil {
			s.logger.Warn("removing stored file", "error", err, "path", res.StoredPath)
		}
	}
	if err := s.checkpoints.Delete(r.Context(), id.String()); err != nil {
		s.logger.Warn("deleting checkpoint", "error", err, "session_id", id)
	}

	w.WriteHeader(http.StatusNoContent)
}
