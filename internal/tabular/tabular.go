// Package tabular implements talq's query engine for delimited text files.
//
// It has three layers:
//
//   - Parse loads a CSV file into header + rows with optional projection and
//     row limits.
//   - Schema infers per-column kinds (numeric vs text) from a bounded sample
//     and reports the total row count.
//   - Query materializes a file into an ephemeral in-memory SQLite store
//     (one call, one store) and executes a read-only SQL statement against a
//     single all-TEXT table named "csv_data".
//
// The all-TEXT table is deliberate: it avoids type-inference surprises at the
// cost of requiring explicit CAST(... AS REAL) for numeric operations. The
// agent's system prompt teaches the model to cast.
//
// Filter, Aggregate, Search and Stats are retained structured operations for
// direct programmatic use over parsed rows.
package tabular

import (
	"errors"
	"log/slog"

	"github.com/talq0/talq/internal/log"
)

// Sentinel errors. Callers check these with errors.Is.
var (
	// ErrParse indicates the file content is not validly delimited
	// (unbalanced quoting, inconsistent field counts).
	ErrParse = errors.New("malformed tabular data")

	// ErrUnsafeQuery indicates a query that is not a read-only SELECT-class
	// statement. Such queries are rejected before any store is created.
	ErrUnsafeQuery = errors.New("unsafe query")

	// ErrColumnNotFound indicates a referenced column is absent from the header.
	ErrColumnNotFound = errors.New("column not found")
)

// Engine parses delimited files and executes queries against them.
// Engine is stateless apart from its logger and safe for concurrent use;
// every Query call builds and tears down its own ephemeral store.
type Engine struct {
	logger log.Logger
}

// NewEngine creates a query engine. A nil logger defaults to slog.Default().
func NewEngine(logger log.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}
