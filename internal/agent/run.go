package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/talq0/talq/internal/checkpoint"
	"github.com/talq0/talq/internal/tools"
)

// Image is a user-attached image: raw bytes plus media type.
type Image struct {
	ContentType string
	Data        []byte
}

// Response represents the complete result of one agent execution.
type Response struct {
	// FinalText is the model's final answer.
	FinalText string
	// NewMessages are the turns this execution appended to the conversation:
	// the user turn, assistant turns (with any tool requests), tool results,
	// and the final assistant turn, in order.
	NewMessages []*ai.Message
	// Rounds is the number of model invocations performed.
	Rounds int
}

// StreamCallback is called for each fragment of streamed response text.
// Returning an error aborts the execution.
type StreamCallback func(ctx context.Context, fragment string) error

// Execute runs the agent without streaming.
func (a *Agent) Execute(ctx context.Context, sessionID uuid.UUID, input string, images []Image) (*Response, error) {
	return a.ExecuteStream(ctx, sessionID, input, images, nil)
}

// ExecuteStream runs the full execution state machine for one user message.
//
// The loop invokes the model with the tool catalog bound, executes any tool
// calls it requests, and repeats until the model answers in plain text or the
// round cap is hit; at the cap the last assistant text becomes the final
// answer. Text fragments are delivered to callback in production order as
// the model produces them; any consolidated suffix the model did not stream
// is flushed once after each model call.
//
// On success the accumulated new turns are appended to the thread's
// checkpoint in one durable write. Nothing is persisted when the model call
// fails or the context is canceled.
func (a *Agent) ExecuteStream(ctx context.Context, sessionID uuid.UUID, input string, images []Image, callback StreamCallback) (*Response, error) {
	if _, err := a.sessions.Session(ctx, sessionID); err != nil {
		return nil, err
	}

	threadKey := sessionID.String()
	release, err := a.lockThread(threadKey)
	if err != nil {
		return nil, err
	}
	defer release()

	// Load failure degrades to an empty history rather than failing the
	// request; the user turn is still answered and re-persisted.
	prior, err := a.checkpoints.Load(ctx, threadKey)
	if err != nil {
		a.logger.Warn("loading checkpoint failed, continuing with empty history",
			"thread_key", threadKey, "error", err)
		prior = &checkpoint.State{}
	}

	systemText := BuildSystemPrompt(a.loadMetadata(ctx, sessionID))

	newMessages := []*ai.Message{userMessage(input, images)}
	toolCtx := tools.ContextWithSessionID(ctx, sessionID)

	var finalText string
	rounds := 0
	for rounds < a.maxTurns {
		rounds++

		resp, err := a.infer(toolCtx, systemText, prior.Messages, newMessages, callback)
		if err != nil {
			return nil, err
		}
		newMessages = append(newMessages, resp.Message)
		finalText = resp.Text()

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			break
		}
		if rounds == a.maxTurns {
			a.logger.Warn("round cap reached with pending tool requests",
				"session_id", sessionID, "rounds", rounds, "pending", len(requests))
			break
		}

		newMessages = append(newMessages, a.executeTools(toolCtx, requests)...)
	}

	if strings.TrimSpace(finalText) == "" {
		a.logger.Warn("model returned empty final response", "session_id", sessionID)
		finalText = FallbackResponseMessage
		newMessages = append(newMessages, ai.NewModelMessage(ai.NewTextPart(finalText)))
		// The model never produced this text, so nothing streamed it; deliver
		// it here or the persisted answer and the streamed one diverge.
		if callback != nil {
			if err := callback(ctx, finalText); err != nil {
				return nil, fmt.Errorf("delivering fallback response: %w", err)
			}
		}
	}

	state := &checkpoint.State{Messages: append(deepCopyMessages(prior.Messages), newMessages...)}
	if err := a.checkpoints.Save(ctx, threadKey, state); err != nil {
		return nil, fmt.Errorf("persisting conversation: %w", err)
	}

	if err := a.sessions.Touch(ctx, sessionID); err != nil {
		a.logger.Warn("touching session failed", "session_id", sessionID, "error", err)
	}

	a.logger.Debug("execution complete",
		"session_id", sessionID, "rounds", rounds, "new_turns", len(newMessages))

	return &Response{FinalText: finalText, NewMessages: newMessages, Rounds: rounds}, nil
}

// infer performs one model invocation with streaming and suffix flush.
func (a *Agent) infer(ctx context.Context, systemText string, prior, current []*ai.Message, callback StreamCallback) (*ai.ModelResponse, error) {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelInvocation, err)
	}

	messages := append(deepCopyMessages(prior), current...)

	opts := []ai.GenerateOption{
		ai.WithModel(a.model),
		ai.WithSystem(systemText),
		ai.WithMessages(messages...),
		ai.WithTools(a.toolRefs...),
		ai.WithReturnToolRequests(true),
	}

	streamed := 0
	if callback != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			streamed += len(text)
			return callback(ctx, text)
		}))
	}

	resp, err := genkit.Generate(ctx, a.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelInvocation, err)
	}

	// The model may deliver a consolidated text longer than what it streamed;
	// flush the undelivered suffix so the caller sees the complete answer.
	if callback != nil {
		if text := resp.Text(); len(text) > streamed {
			if err := callback(ctx, text[streamed:]); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrModelInvocation, err)
			}
		}
	}

	return resp, nil
}

// executeTools runs every pending tool request and produces one tool-result
// message per request, in request order, each carrying the originating call
// ref. Tool failures become structured error payloads the model can read;
// they never abort the execution.
func (a *Agent) executeTools(ctx context.Context, requests []*ai.ToolRequest) []*ai.Message {
	results := make([]*ai.Message, 0, len(requests))
	for _, req := range requests {
		var output any

		tool := genkit.LookupTool(a.g, req.Name)
		if tool == nil {
			a.logger.Warn("model requested unknown tool", "tool", req.Name)
			output = map[string]any{"error": &tools.ToolError{
				ErrorType: tools.ErrTypeInvalidArgs,
				Message:   fmt.Sprintf("unknown tool %q", req.Name),
			}}
		} else {
			out, err := tool.RunRaw(ctx, req.Input)
			if err != nil {
				a.logger.Warn("tool execution failed", "tool", req.Name, "error", err)
				output = map[string]any{"error": &tools.ToolError{
					ErrorType: tools.ErrTypeInvalidArgs,
					Message:   err.Error(),
				}}
			} else {
				output = out
			}
		}

		results = append(results, &ai.Message{
			Role: ai.RoleTool,
			Content: []*ai.Part{ai.NewToolResponsePart(&ai.ToolResponse{
				Name:   req.Name,
				Ref:    req.Ref,
				Output: output,
			})},
		})
	}
	return results
}

// loadMetadata lists the session's resources and loads schema metadata
// best-effort: a resource whose file cannot be parsed degrades to a
// name-and-size entry instead of aborting the execution.
func (a *Agent) loadMetadata(ctx context.Context, sessionID uuid.UUID) []ResourceMeta {
	resources, err := a.sessions.ListResources(ctx, sessionID)
	if err != nil {
		a.logger.Warn("listing resources failed, continuing without metadata",
			"session_id", sessionID, "error", err)
		return nil
	}

	metas := make([]ResourceMeta, 0, len(resources))
	for _, r := range resources {
		meta := ResourceMeta{Name: r.OriginalName, SizeBytes: r.SizeBytes}
		schema, err := a.engine.Schema(r.StoredPath)
		if err != nil {
			a.logger.Warn("loading schema failed, degrading entry",
				"resource", r.OriginalName, "error", err)
		} else {
			meta.Schema = schema
		}
		metas = append(metas, meta)
	}
	return metas
}

// userMessage assembles the user turn from text plus optional images.
func userMessage(input string, images []Image) *ai.Message {
	parts := make([]*ai.Part, 0, len(images)+1)
	parts = append(parts, ai.NewTextPart(input))
	for _, img := range images {
		encoded := base64.StdEncoding.EncodeToString(img.Data)
		parts = append(parts, ai.NewMediaPart(img.ContentType,
			"data:"+img.ContentType+";base64,"+encoded))
	}
	return ai.NewUserMessage(parts...)
}
