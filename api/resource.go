package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/talq0/talq/internal/resource"
	"github.com/talq0/talq/internal/session"
)

// multipartOverheadBytes pads the request body cap to leave room for
// multipart boundaries and headers around the file itself.
const multipartOverheadBytes = 64 << 10

// uploadResource handles POST /api/sessions/{id}/resources, a multipart
// upload with the file under the "file" field.
func (s *Server) uploadResource(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if !s.requireSession(w, r, sessionID) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverheadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, `multipart "file" field is required`)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			s.logger.Warn("closing upload", "error", err)
		}
	}()

	stored, err := s.files.Save(header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.writeIngestError(w, err, "storing upload")
		return
	}
	s.addResource(w, r, sessionID, stored)
}

type fetchResourceRequest struct {
	URL string `json:"url"`
}

// fetchResource handles POST /api/sessions/{id}/resources/url, attaching a
// file downloaded from the given URL.
func (s *Server) fetchResource(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if !s.requireSession(w, r, sessionID) {
		return
	}

	var req fetchResourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	stored, err := s.files.Fetch(req.URL)
	if err != nil {
		s.writeIngestError(w, err, "fetching resource")
		return
	}
	s.addResource(w, r, sessionID, stored)
}

// addResource records a stored file against the session. The stored file is
// removed again if the database insert fails.
func (s *Server) addResource(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID, stored *resource.StoredFile) {
	res, err := s.sessions.AddResource(r.Context(), &session.Resource{
		SessionID:    sessionID,
		OriginalName: stored.OriginalName,
		StoredPath:   stored.StoredPath,
		MimeType:     stored.MimeType,
		SizeBytes:    stored.SizeBytes,
	})
	if err != nil {
		if rerr := s.files.Remove(stored.StoredPath); rerr != nil {
			s.logger.Warn("removing orphaned file", "error", rerr, "path", stored.StoredPath)
		}
		s.logger.Error("recording resource", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "recording resource")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// listResources handles GET /api/sessions/{id}/resources.
func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if !s.requireSession(w, r, sessionID) {
		return
	}

	resources, err := s.sessions.ListResources(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("listing resources", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "listing resources")
		return
	}
	if resources == nil {
		resources = []*session.Resource{}
	}
	writeJSON(w, http.StatusOK, resources)
}

// deleteResource handles DELETE /api/sessions/{id}/resources/{resourceID}.
// The stored file is removed after the row so a failed delete leaves the
// resource intact.
func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	if _, ok := pathUUID(w, r, "id"); !ok {
		return
	}
	resourceID, ok := pathUUID(w, r, "resourceID")
	if !ok {
		return
	}

	res, err := s.sessions.DeleteResource(r.Context(), resourceID)
	if err != nil {
		if errors.Is(err, session.ErrResourceNotFound) {
			writeError(w, http.StatusNotFound, "resource not found")
			return
		}
		s.logger.Error("deleting resource", "error", err, "resource_id", resourceID)
		writeError(w, http.StatusInternalServerError, "deleting resource")
		return
	}

	if err := s.files.Remove(res.StoredPath); err != nil {
		s.logger.Warn("removing stored file", "error", err, "path", res.StoredPath)
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireSession verifies the session exists, writing a 404 otherwise.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) bool {
	if _, err := s.sessions.Session(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return false
		}
		s.logger.Error("getting session", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "getting session")
		return false
	}
	return true
}

// writeIngestError maps ingestion failures to HTTP statuses.
func (s *Server) writeIngestError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, resource.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, resource.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, resource.ErrFetch):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error(logMsg, "error", err)
		writeError(w, http.StatusInternalServerError, logMsg)
	}
}
