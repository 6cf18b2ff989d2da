// Package tools provides the Genkit tool catalog the agent may call.
//
// The catalog is fixed: load_csv_data inspects a dataset's schema and sample
// rows, execute_sql_query runs a read-only SQL query against a dataset.
// Tool failures are returned to the model as structured ToolError payloads in
// the tool output, never as Go errors, so the model can react to its own
// tool's failure in natural language.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/talq0/talq/internal/log"
	"github.com/talq0/talq/internal/session"
	"github.com/talq0/talq/internal/tabular"
)

// Tool names, the single source of truth for the catalog.
const (
	ToolLoadCSVData     = "load_csv_data"
	ToolExecuteSQLQuery = "execute_sql_query"
)

// MaxResultRows caps the number of rows serialized into a tool result so tool
// output cannot unboundedly inflate the model's context. The true total row
// count is always reported alongside the truncated rows.
const MaxResultRows = 200

// Sample row bounds for load_csv_data.
const (
	DefaultSampleRows = 5
	MaxSampleRows     = 20
)

// ToolNames returns all registered tool names.
func ToolNames() []string {
	return []string{ToolLoadCSVData, ToolExecuteSQLQuery}
}

// Resolver lists the tabular resources attached to a session.
// Defined by the consumer; *session.Store satisfies it.
type Resolver interface {
	ListResources(ctx context.Context, sessionID uuid.UUID) ([]*session.Resource, error)
}

// Engine is the subset of the tabular query engine the tools need.
type Engine interface {
	Parse(path string, opts tabular.ParseOptions) (*tabular.Table, error)
	Schema(path string) (*tabular.Schema, error)
	Query(ctx context.Context, path, datasetName, query string) (*tabular.Result, error)
}

// LoadCSVInput defines input for the load_csv_data tool.
type LoadCSVInput struct {
	Dataset    string `json:"dataset" jsonschema_description:"Name of the attached CSV dataset to inspect (the file name shown in the session)"`
	SampleRows int    `json:"sample_rows,omitempty" jsonschema_description:"Number of sample rows to return (default 5, max 20)"`
}

// ExecuteSQLInput defines input for the execute_sql_query tool.
type ExecuteSQLInput struct {
	Dataset string `json:"dataset" jsonschema_description:"Name of the attached CSV dataset to query"`
	Query   string `json:"query" jsonschema_description:"A single read-only SQL SELECT statement. All columns are TEXT; CAST explicitly for numeric operations. The table may be referenced by the dataset name or as csv_data."`
}

// ColumnInfo describes one column in a load_csv_data result.
type ColumnInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// LoadCSVOutput is the result of load_csv_data.
type LoadCSVOutput struct {
	Dataset   string              `json:"dataset,omitempty"`
	Columns   []ColumnInfo        `json:"columns,omitempty"`
	TotalRows int                 `json:"total_rows"`
	Sample    []map[string]string `json:"sample,omitempty"`
	Error     *ToolError          `json:"error,omitempty"`
}

// ExecuteSQLOutput is the result of execute_sql_query.
type ExecuteSQLOutput struct {
	Columns   []string         `json:"columns,omitempty"`
	Rows      []map[string]any `json:"rows,omitempty"`
	TotalRows int              `json:"total_rows"`
	Truncated bool             `json:"truncated,omitempty"`
	Error     *ToolError       `json:"error,omitempty"`
}

// CSVToolset provides the CSV analysis tools backed by the tabular engine.
type CSVToolset struct {
	resolver Resolver
	engine   Engine
	logger   log.Logger

	loadSchema *jsonschema.Resolved
	sqlSchema  *jsonschema.Resolved
}

// NewCSVToolset creates the toolset and precompiles the argument schemas.
func NewCSVToolset(resolver Resolver, engine Engine, logger log.Logger) (*CSVToolset, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	loadSchema, err := jsonschema.For[LoadCSVInput](nil)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", ToolLoadCSVData, err)
	}
	resolvedLoad, err := loadSchema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema for %s: %w", ToolLoadCSVData, err)
	}

	sqlSchema, err := jsonschema.For[ExecuteSQLInput](nil)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", ToolExecuteSQLQuery, err)
	}
	resolvedSQL, err := sqlSchema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema for %s: %w", ToolExecuteSQLQuery, err)
	}

	return &CSVToolset{
		resolver:   resolver,
		engine:     engine,
		logger:     logger,
		loadSchema: resolvedLoad,
		sqlSchema:  resolvedSQL,
	}, nil
}

// Register registers both tools with Genkit.
func (t *CSVToolset) Register(g *genkit.Genkit) error {
	if g == nil {
		return fmt.Errorf("genkit instance is required")
	}

	genkit.DefineTool(g, ToolLoadCSVData,
		"Inspect an attached CSV dataset: returns its column names, inferred column kinds "+
			"(numeric or text), total row count, and a few sample rows. "+
			"Call this first when you are unsure of a dataset's structure.",
		t.LoadCSVData)

	genkit.DefineTool(g, ToolExecuteSQLQuery,
		"Execute a read-only SQL SELECT statement against an attached CSV dataset. "+
			"This is the primary analysis tool: prefer it over inspecting raw rows. "+
			"All columns are stored as TEXT, so CAST explicitly for numeric operations "+
			"(e.g. AVG(CAST(amount AS REAL))). Only SELECT and WITH statements are allowed. "+
			"Large results are truncated; use aggregation or LIMIT to keep results small.",
		t.ExecuteSQLQuery)

	t.logger.Debug("registered CSV tools", "tools", ToolNames())
	return nil
}

// LoadCSVData returns schema information and sample rows for one dataset.
// All failures are reported in the output's Error field.
func (t *CSVToolset) LoadCSVData(ctx *ai.ToolContext, input LoadCSVInput) (LoadCSVOutput, error) {
	t.logger.Info("load_csv_data called", "dataset", input.Dataset, "sample_rows", input.SampleRows)

	if terr := t.validateArgs(t.loadSchema, input); terr != nil {
		return LoadCSVOutput{Error: terr}, nil
	}
	if strings.TrimSpace(input.Dataset) == "" {
		return LoadCSVOutput{Error: invalidArgs("dataset is required")}, nil
	}
	if input.SampleRows < 0 || input.SampleRows > MaxSampleRows {
		return LoadCSVOutput{Error: invalidArgs(fmt.Sprintf("sample_rows must be between 0 and %d", MaxSampleRows))}, nil
	}

	res, terr := t.resolve(ctx.Context, input.Dataset)
	if terr != nil {
		return LoadCSVOutput{Error: terr}, nil
	}

	schema, err := t.engine.Schema(res.StoredPath)
	if err != nil {
		return LoadCSVOutput{Error: toToolError(err)}, nil
	}

	limit := input.SampleRows
	if limit == 0 {
		limit = DefaultSampleRows
	}
	table, err := t.engine.Parse(res.StoredPath, tabular.ParseOptions{Limit: limit})
	if err != nil {
		return LoadCSVOutput{Error: toToolError(err)}, nil
	}

	columns := make([]ColumnInfo, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		columns = append(columns, ColumnInfo{Name: c.Name, Kind: string(c.Kind)})
	}

	return LoadCSVOutput{
		Dataset:   res.OriginalName,
		Columns:   columns,
		TotalRows: schema.RowCount,
		Sample:    table.Rows,
	}, nil
}

// ExecuteSQLQuery runs a read-only SQL statement against one dataset.
// Row output is truncated at MaxResultRows; TotalRows always carries the true
// result size. All failures are reported in the output's Error field.
func (t *CSVToolset) ExecuteSQLQuery(ctx *ai.ToolContext, input ExecuteSQLInput) (ExecuteSQLOutput, error) {
	t.logger.Info("execute_sql_query called", "dataset", input.Dataset)

	if terr := t.validateArgs(t.sqlSchema, input); terr != nil {
		return ExecuteSQLOutput{Error: terr}, nil
	}
	if strings.TrimSpace(input.Dataset) == "" {
		return ExecuteSQLOutput{Error: invalidArgs("dataset is required")}, nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return ExecuteSQLOutput{Error: invalidArgs("query is required")}, nil
	}

	res, terr := t.resolve(ctx.Context, input.Dataset)
	if terr != nil {
		return ExecuteSQLOutput{Error: terr}, nil
	}

	result, err := t.engine.Query(ctx.Context, res.StoredPath, res.OriginalName, input.Query)
	if err != nil {
		return ExecuteSQLOutput{Error: toToolError(err)}, nil
	}

	rows := result.Rows
	truncated := false
	if len(rows) > MaxResultRows {
		rows = rows[:MaxResultRows]
		truncated = true
	}

	return ExecuteSQLOutput{
		Columns:   result.Columns,
		Rows:      rows,
		TotalRows: result.RowCount,
		Truncated: truncated,
	}, nil
}

// resolve maps a dataset name to the session resource backing it. The active
// session is read from the context injected by the agent. Matching is
// case-insensitive on the original file name, with and without extension.
func (t *CSVToolset) resolve(ctx context.Context, dataset string) (*session.Resource, *ToolError) {
	sessionID := SessionIDFromContext(ctx)
	if sessionID == uuid.Nil {
		return nil, &ToolError{
			ErrorType: ErrTypeResourceNotFound,
			Message:   "no active session",
		}
	}

	resources, err := t.resolver.ListResources(ctx, sessionID)
	if err != nil {
		return nil, &ToolError{
			ErrorType: ErrTypeResourceNotFound,
			Message:   fmt.Sprintf("listing resources: %v", err),
		}
	}

	want := strings.ToLower(strings.TrimSpace(dataset))
	for _, r := range resources {
		name := strings.ToLower(r.OriginalName)
		if name == want || strings.TrimSuffix(name, ".csv") == strings.TrimSuffix(want, ".csv") {
			return r, nil
		}
	}

	known := make([]string, 0, len(resources))
	for _, r := range resources {
		known = append(known, r.OriginalName)
	}
	return nil, &ToolError{
		ErrorType: ErrTypeResourceNotFound,
		Message:   fmt.Sprintf("dataset %q not found; attached datasets: %s", dataset, strings.Join(known, ", ")),
	}
}

// validateArgs checks the input against the tool's compiled JSON schema.
func (t *CSVToolset) validateArgs(schema *jsonschema.Resolved, input any) *ToolError {
	raw, err := json.Marshal(input)
	if err != nil {
		return invalidArgs(err.Error())
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return invalidArgs(err.Error())
	}
	if err := schema.Validate(instance); err != nil {
		return invalidArgs(err.Error())
	}
	return nil
}

func invalidArgs(msg string) *ToolError {
	return &ToolError{ErrorType: ErrTypeInvalidArgs, Message: msg}
}

// toToolError maps engine sentinel errors to model-facing error types.
func toToolError(err error) *ToolError {
	switch {
	case errors.Is(err, tabular.ErrUnsafeQuery):
		return &ToolError{ErrorType: ErrTypeUnsafeQuery, Message: err.Error()}
	case errors.Is(err, tabular.ErrParse):
		return &ToolError{ErrorType: ErrTypeParse, Message: err.Error()}
	default:
		return &ToolError{ErrorType: ErrTypeQuery, Message: err.Error()}
	}
}
