package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/talq0/talq/internal/agent"
	"github.com/talq0/talq/internal/testutil"
)

type chatEvent struct {
	Content string `json:"content"`
	Error   string `json:"error"`
}

func TestChatStream(t *testing.T) {
	f := mustFixture(t)
	sess, err := f.sessions.CreateSession(context.Background(), "chatting")
	if err != nil {
		t.Fatal(err)
	}
	f.agent.fragments = []agent.Fragment{
		{Content: "The average "},
		{Content: "is 116.67."},
	}

	rec := doJSON(t, f, http.MethodPost, "/api/chat/stream",
		`{"session_id":"`+sess.ID.String()+`","message":"what is the average amount?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(events), events)
	}

	var text string
	for _, ev := range events[:2] {
		var payload chatEvent
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			t.Fatalf("decoding event %q: %v", ev.Data, err)
		}
		if payload.Error != "" {
			t.Fatalf("unexpected error event: %q", payload.Error)
		}
		text += payload.Content
	}
	if text != "The average is 116.67." {
		t.Errorf("streamed text = %q, want %q", text, "The average is 116.67.")
	}
	if events[2].Data != "[DONE]" {
		t.Errorf("terminator = %q, want [DONE]", events[2].Data)
	}

	if f.agent.lastText != "what is the average amount?" {
		t.Errorf("agent received %q", f.agent.lastText)
	}
}

func TestChatStream_ErrorEvent(t *testing.T) {
	f := mustFixture(t)
	sess, err := f.sessions.CreateSession(context.Background(), "chatting")
	if err != nil {
		t.Fatal(err)
	}
	f.agent.fragments = []agent.Fragment{
		{Content: "partial "},
		{Err: agent.ErrModelInvocation},
	}

	rec := doJSON(t, f, http.MethodPost, "/api/chat/stream",
		`{"session_id":"`+sess.ID.String()+`","message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(events), events)
	}

	var payload chatEvent
	if err := json.Unmarshal([]byte(events[1].Data), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Error == "" {
		t.Errorf("second event = %q, want an error payload", events[1].Data)
	}
	if events[2].Data != "[DONE]" {
		t.Errorf("terminator = %q, want [DONE]", events[2].Data)
	}
}

func TestChatStream_BadRequests(t *testing.T) {
	f := mustFixture(t)
	sess, err := f.sessions.CreateSession(context.Background(), "chatting")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing session id", `{"message":"hi"}`, http.StatusBadRequest},
		{"bad session id", `{"session_id":"nope","message":"hi"}`, http.StatusBadRequest},
		{"empty message", `{"session_id":"` + sess.ID.String() + `","message":"  "}`, http.StatusBadRequest},
		{"bad image encoding", `{"session_id":"` + sess.ID.String() + `","message":"hi","images":[{"content_type":"image/png","data":"!!"}]}`, http.StatusBadRequest},
		{"non-image attachment", `{"session_id":"` + sess.ID.String() + `","message":"hi","images":[{"content_type":"text/csv","data":"YQ=="}]}`, http.StatusBadRequest},
		{"unknown session", `{"session_id":"2a9e1f9e-1111-4222-8333-444455556666","message":"hi"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, f, http.MethodPost, "/api/chat/stream", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
