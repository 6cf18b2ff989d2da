package testutil

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// StreamMode controls how MockLLM delivers text to the streaming callback.
type StreamMode int

const (
	// StreamWhole delivers the full response text as a single chunk.
	StreamWhole StreamMode = iota
	// StreamWords delivers the response word by word, preserving spacing.
	StreamWords
	// StreamNone never invokes the callback; the consolidated response text
	// arrives only in the final message.
	StreamNone
)

// MockLLM provides deterministic, scripted LLM responses for testing.
// Turns are consumed in call order; when the script is exhausted the fallback
// text is returned (or the last turn repeats if RepeatLast is set).
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu         sync.Mutex
	script     []mockTurn
	next       int
	fallback   string
	repeatLast bool
	streamMode StreamMode
	requests   []*ai.ModelRequest
}

type mockTurn struct {
	text  string
	tools []*ai.ToolRequest // tool calls to request (nil = text only)
}

// NewMockLLM creates a mock LLM with the given fallback response.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddTextTurn appends a plain-text response to the script.
func (m *MockLLM) AddTextTurn(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockTurn{text: text})
}

// AddToolTurn appends a response that requests the given tool calls.
func (m *MockLLM) AddToolTurn(text string, tools ...*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockTurn{text: text, tools: tools})
}

// RepeatLast makes the final scripted turn repeat forever instead of falling
// back to the fallback text. Use with a tool turn to simulate a model that
// never stops requesting tools.
func (m *MockLLM) RepeatLast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repeatLast = true
}

// SetStreamMode selects how responses are streamed.
func (m *MockLLM) SetStreamMode(mode StreamMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamMode = mode
}

// Requests returns a copy of every model request received.
func (m *MockLLM) Requests() []*ai.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*ai.ModelRequest, len(m.requests))
	copy(cp, m.requests)
	return cp
}

// CallCount returns the number of model invocations so far.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// RegisterModel registers the mock as a Genkit model and returns a reference.
// The model name will be "mock/test-model".
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
			Media:      true,
		},
	}, m.generate)
}

// generate is the Genkit model function.
func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	m.mu.Lock()
	turn := mockTurn{text: m.fallback}
	switch {
	case m.next < len(m.script):
		turn = m.script[m.next]
		m.next++
	case m.repeatLast && len(m.script) > 0:
		turn = m.script[len(m.script)-1]
	}
	mode := m.streamMode
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if cb != nil && mode != StreamNone {
		switch mode {
		case StreamWords:
			for _, chunk := range splitKeepingSpace(turn.text) {
				if err := cb(ctx, &ai.ModelResponseChunk{
					Content: []*ai.Part{ai.NewTextPart(chunk)},
				}); err != nil {
					return nil, err
				}
			}
		default:
			if err := cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{ai.NewTextPart(turn.text)},
			}); err != nil {
				return nil, err
			}
		}
	}

	var parts []*ai.Part
	for _, tr := range turn.tools {
		parts = append(parts, ai.NewToolRequestPart(tr))
	}
	if turn.text != "" || len(parts) == 0 {
		parts = append(parts, ai.NewTextPart(turn.text))
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: parts,
		},
	}, nil
}

// splitKeepingSpace splits text into word-sized chunks whose concatenation is
// exactly the original text.
func splitKeepingSpace(text string) []string {
	var chunks []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' {
			chunks = append(chunks, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	if len(chunks) == 0 && text != "" {
		chunks = []string{text}
	}
	return chunks
}

// LastUserText extracts the text of the last user message in a request.
func LastUserText(req *ai.ModelRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			return req.Messages[i].Text()
		}
	}
	return ""
}

// ContainsToolResponse reports whether any message in the request carries a
// tool response with the given ref.
func ContainsToolResponse(req *ai.ModelRequest, ref string) bool {
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.ToolResponse != nil && part.ToolResponse.Ref == ref {
				return true
			}
		}
	}
	return false
}
