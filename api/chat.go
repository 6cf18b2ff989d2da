package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/talq0/talq/internal/agent"
)

type chatStreamRequest struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Images    []imagePayload `json:"images,omitempty"`
}

type imagePayload struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"` // base64
}

// streamEvent is the JSON payload of one SSE data line. Exactly one field is
// set per event.
type streamEvent struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// doneEvent terminates every stream, including failed ones.
const doneEvent = "[DONE]"

// chatStream handles POST /api/chat/stream. The response is an SSE stream of
// "data: {json}" events carrying text fragments in model order, closed by a
// "data: [DONE]" terminator. Errors after streaming has begun arrive as an
// error event rather than an HTTP status.
func (s *Server) chatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	images, err := decodeImages(req.Images)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Resolve the session before committing to an SSE response so a missing
	// session is a plain 404 rather than an in-stream error event.
	if !s.requireSession(w, r, sessionID) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("response writer does not support flushing")
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for fragment := range s.agent.StreamMessage(r.Context(), sessionID, req.Message, images) {
		if fragment.Err != nil {
			s.logger.Error("chat stream failed", "error", fragment.Err, "session_id", sessionID)
			s.writeSSE(w, flusher, streamEvent{Error: publicStreamError(fragment.Err)})
			break
		}
		s.writeSSE(w, flusher, streamEvent{Content: fragment.Content})
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", doneEvent); err != nil {
		s.logger.Warn("writing stream terminator", "error", err)
		return
	}
	flusher.Flush()
}

// writeSSE emits one event and flushes it to the client.
func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, event streamEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("encoding stream event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		s.logger.Warn("writing stream event", "error", err)
		return
	}
	flusher.Flush()
}

// publicStreamError maps execution failures to client-safe messages.
func publicStreamError(err error) string {
	switch {
	case errors.Is(err, agent.ErrExecutionInFlight):
		return "another message is already being processed for this session"
	case errors.Is(err, agent.ErrModelInvocation):
		return "the model could not be reached, please try again"
	default:
		return "message processing failed"
	}
}

func decodeImages(payloads []imagePayload) ([]agent.Image, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	images := make([]agent.Image, 0, len(payloads))
	for i, p := range payloads {
		if !strings.HasPrefix(p.ContentType, "image/") {
			return nil, fmt.Errorf("images[%d]: content_type must be an image type", i)
		}
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return nil, fmt.Errorf("images[%d]: data is not valid base64", i)
		}
		images = append(images, agent.Image{ContentType: p.ContentType, Data: data})
	}
	return images, nil
}
