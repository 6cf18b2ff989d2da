// Package agent implements the tool-using conversational execution core.
//
// One execution drives the model through a bounded loop of inference and
// tool-call rounds: metadata about the session's datasets is loaded first,
// the model is invoked with the tool catalog bound, requested tools are
// executed and their results folded back into the conversation, and the loop
// repeats until the model answers in plain text or the round cap is reached.
// Text is streamed to the caller as the model produces it, and the completed
// turn sequence is persisted as a single checkpoint write.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/talq0/talq/internal/checkpoint"
	"github.com/talq0/talq/internal/log"
	"github.com/talq0/talq/internal/session"
	"github.com/talq0/talq/internal/tabular"
	"github.com/talq0/talq/internal/tools"
)

// DefaultMaxTurns bounds the inference/tool-call round trips per execution.
// The cap is a hard termination guarantee, not a tuning knob.
const DefaultMaxTurns = 5

// FallbackResponseMessage is returned when the model produces an empty
// terminal response.
const FallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// SessionStore is the subset of the session store the agent needs.
// Defined by the consumer so tests can substitute a fake.
type SessionStore interface {
	Session(ctx context.Context, id uuid.UUID) (*session.Session, error)
	ListResources(ctx context.Context, sessionID uuid.UUID) ([]*session.Resource, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

// MetadataEngine loads schema metadata for attached datasets.
// *tabular.Engine satisfies it.
type MetadataEngine interface {
	Schema(path string) (*tabular.Schema, error)
}

// Config contains all required parameters for the agent.
type Config struct {
	Genkit      *genkit.Genkit
	Model       ai.Model
	Sessions    SessionStore
	Checkpoints checkpoint.Store
	Engine      MetadataEngine
	Logger      log.Logger

	// MaxTurns bounds inference/tool rounds per execution (default 5).
	MaxTurns int

	// LockDir holds per-thread execution lock files.
	LockDir string

	// RateLimiter throttles model calls (nil = default 10 req/s, burst 30).
	RateLimiter *rate.Limiter
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Model == nil {
		return errors.New("model is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Checkpoints == nil {
		return errors.New("checkpoint store is required")
	}
	if cfg.Engine == nil {
		return errors.New("metadata engine is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.LockDir == "" {
		return errors.New("lock directory is required")
	}
	return nil
}

// Agent is the conversational execution core.
//
// Agent is stateless between executions; all conversation state lives in the
// checkpoint store. All configuration is captured immutably at construction
// time, so one Agent is safe for concurrent use across sessions. Concurrent
// executions on the same session are rejected with ErrExecutionInFlight.
type Agent struct {
	g           *genkit.Genkit
	model       ai.Model
	sessions    SessionStore
	checkpoints checkpoint.Store
	engine      MetadataEngine
	logger      log.Logger

	maxTurns    int
	lockDir     string
	rateLimiter *rate.Limiter

	toolRefs  []ai.ToolRef
	toolNames string // comma-separated, cached for logging
}

// New creates an Agent. The CSV tools must already be registered with the
// Genkit instance (tools.CSVToolset.Register).
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	if err := os.MkdirAll(cfg.LockDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	names := tools.ToolNames()
	toolRefs := make([]ai.ToolRef, 0, len(names))
	for _, name := range names {
		tool := genkit.LookupTool(cfg.Genkit, name)
		if tool == nil {
			return nil, fmt.Errorf("tool %q is not registered", name)
		}
		toolRefs = append(toolRefs, tool)
	}

	a := &Agent{
		g:           cfg.Genkit,
		model:       cfg.Model,
		sessions:    cfg.Sessions,
		checkpoints: cfg.Checkpoints,
		engine:      cfg.Engine,
		logger:      cfg.Logger,
		maxTurns:    maxTurns,
		lockDir:     cfg.LockDir,
		rateLimiter: rl,
		toolRefs:    toolRefs,
		toolNames:   strings.Join(names, ", "),
	}

	a.logger.Info("agent initialized", "tools", a.toolNames, "max_turns", a.maxTurns)
	return a, nil
}
