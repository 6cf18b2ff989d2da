package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/talq0/talq/internal/log"
	"github.com/talq0/talq/internal/session"
	"github.com/talq0/talq/internal/tabular"
)

// fakeResolver serves a fixed resource list for one session ID.
type fakeResolver struct {
	sessionID uuid.UUID
	resources []*session.Resource
	err       error
}

func (f *fakeResolver) ListResources(_ context.Context, sessionID uuid.UUID) ([]*session.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	if sessionID != f.sessionID {
		return nil, nil
	}
	return f.resources, nil
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func newTestToolset(t *testing.T, resources ...*session.Resource) (*CSVToolset, *ai.ToolContext) {
	t.Helper()
	sessionID := uuid.New()
	resolver := &fakeResolver{sessionID: sessionID, resources: resources}
	ts, err := NewCSVToolset(resolver, tabular.NewEngine(log.NewNop()), log.NewNop())
	if err != nil {
		t.Fatalf("NewCSVToolset: %v", err)
	}
	ctx := ContextWithSessionID(context.Background(), sessionID)
	return ts, &ai.ToolContext{Context: ctx}
}

const salesCSV = "Region,Amount\nNorth,100\nSouth,200\nNorth,50\n"

func salesResource(t *testing.T) *session.Resource {
	t.Helper()
	return &session.Resource{
		ID:           uuid.New(),
		OriginalName: "sales.csv",
		StoredPath:   writeCSV(t, "stored.csv", salesCSV),
		MimeType:     "text/csv",
	}
}

func TestLoadCSVData(t *testing.T) {
	ts, tctx := newTestToolset(t, salesResource(t))

	out, err := ts.LoadCSVData(tctx, LoadCSVInput{Dataset: "sales.csv"})
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if out.Error != nil {
		t.Fatalf("unexpected tool error: %v", out.Error)
	}
	if out.Dataset != "sales.csv" {
		t.Errorf("Dataset = %q, want sales.csv", out.Dataset)
	}
	if out.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", out.TotalRows)
	}
	want := []ColumnInfo{{Name: "Region", Kind: "text"}, {Name: "Amount", Kind: "numeric"}}
	if len(out.Columns) != len(want) {
		t.Fatalf("Columns = %v, want %v", out.Columns, want)
	}
	for i, c := range want {
		if out.Columns[i] != c {
			t.Errorf("Columns[%d] = %v, want %v", i, out.Columns[i], c)
		}
	}
	if len(out.Sample) != 3 {
		t.Errorf("len(Sample) = %d, want 3 (fewer rows than default sample size)", len(out.Sample))
	}
}

func TestLoadCSVData_SampleRowsLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	res := &session.Resource{
		ID:           uuid.New(),
		OriginalName: "numbers.csv",
		StoredPath:   writeCSV(t, "numbers.csv", b.String()),
	}
	ts, tctx := newTestToolset(t, res)

	out, err := ts.LoadCSVData(tctx, LoadCSVInput{Dataset: "numbers", SampleRows: 2})
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if out.Error != nil {
		t.Fatalf("unexpected tool error: %v", out.Error)
	}
	if len(out.Sample) != 2 {
		t.Errorf("len(Sample) = %d, want 2", len(out.Sample))
	}
	if out.TotalRows != 10 {
		t.Errorf("TotalRows = %d, want 10", out.TotalRows)
	}
}

func TestLoadCSVData_InvalidArgs(t *testing.T) {
	ts, tctx := newTestToolset(t, salesResource(t))

	tests := []struct {
		name  string
		input LoadCSVInput
	}{
		{"empty dataset", LoadCSVInput{}},
		{"negative sample rows", LoadCSVInput{Dataset: "sales.csv", SampleRows: -1}},
		{"excessive sample rows", LoadCSVInput{Dataset: "sales.csv", SampleRows: MaxSampleRows + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ts.LoadCSVData(tctx, tt.input)
			if err != nil {
				t.Fatalf("tool errors must be returned in the output, got: %v", err)
			}
			if out.Error == nil || out.Error.ErrorType != ErrTypeInvalidArgs {
				t.Errorf("Error = %v, want %s", out.Error, ErrTypeInvalidArgs)
			}
		})
	}
}

func TestLoadCSVData_UnknownDataset(t *testing.T) {
	ts, tctx := newTestToolset(t, salesResource(t))

	out, err := ts.LoadCSVData(tctx, LoadCSVInput{Dataset: "inventory.csv"})
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if out.Error == nil || out.Error.ErrorType != ErrTypeResourceNotFound {
		t.Fatalf("Error = %v, want %s", out.Error, ErrTypeResourceNotFound)
	}
	if !strings.Contains(out.Error.Message, "sales.csv") {
		t.Errorf("error message should name attached datasets, got %q", out.Error.Message)
	}
}

func TestLoadCSVData_NoActiveSession(t *testing.T) {
	ts, _ := newTestToolset(t, salesResource(t))

	out, err := ts.LoadCSVData(&ai.ToolContext{Context: context.Background()}, LoadCSVInput{Dataset: "sales.csv"})
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if out.Error == nil || out.Error.ErrorType != ErrTypeResourceNotFound {
		t.Errorf("Error = %v, want %s", out.Error, ErrTypeResourceNotFound)
	}
}

func TestLoadCSVData_MalformedCSV(t *testing.T) {
	res := &session.Resource{
		ID:           uuid.New(),
		OriginalName: "broken.csv",
		StoredPath:   writeCSV(t, "broken.csv", "a,b\n1,2,3\n"),
	}
	ts, tctx := newTestToolset(t, res)

	out, err := ts.LoadCSVData(tctx, LoadCSVInput{Dataset: "broken.csv"})
	if err != nil {
		t.Fatalf("LoadCSVData: %v", err)
	}
	if out.Error == nil || out.Error.ErrorType != ErrTypeParse {
		t.Errorf("Error = %v, want %s", out.Error, ErrTypeParse)
	}
}

func TestExecuteSQLQuery(t *testing.T) {
	ts, tctx := newTestToolset(t, salesResource(t))

	out, err := ts.ExecuteSQLQuery(tctx, ExecuteSQLInput{
		Dataset: "sales.csv",
		Query:   "SELECT AVG(CAST(Amount AS REAL)) AS avg_amount FROM csv_data",
	})
	if err != nil {
		t.Fatalf("ExecuteSQLQuery: %v", err)
	}
	if out.Error != nil {
		t.Fatalf("unexpected tool error: %v", out.Error)
	}
	if out.TotalRows != 1 || len(out.Rows) != 1 {
		t.Fatalf("TotalRows = %d, len(Rows) = %d, want 1 and 1", out.TotalRows, len(out.Rows))
	}
	avg, ok := out.Rows[0]["avg_amount"].(float64)
	if !ok {
		t.Fatalf("avg_amount = %T(%v), want float64", out.Rows[0]["avg_amount"], out.Rows[0]["avg_amount"])
	}
	if avg < 116.6 || avg > 116.7 {
		t.Errorf("avg_amount = %v, want ~116.67", avg)
	}
}

func TestExecuteSQLQuery_DatasetNameInQuery(t *testing.T) {
	ts, tctx := newTestToolset(t, salesResource(t))

	out, err := ts.ExecuteSQLQuery(tctx, ExecuteSQLInput{
		Dataset: "sales.csv",
		Query:   `SELECT COUNT(*) AS n FROM sales`,
	})
	if err != nil {
		t.Fatalf("ExecuteSQLQuery: %v", err)
	}
	if out.Error != nil {
		t.Fatalf("unexpected tool error: %v", out.Error)
	}
	if n, ok := out.Rows[0]["n"].(int64); !ok || n != 3 {
		t.Errorf("n = %v, want 3", out.Rows[0]["n"])
	}
}

func TestExecuteSQLQuery_UnsafeQuery(t *testing.T) {
	ts, tctx := newTestToolset(t, salesResource(t))

	out, err := ts.ExecuteSQLQuery(tctx, ExecuteSQLInput{
		Dataset: "sales.csv",
		Query:   "DROP TABLE csv_data",
	})
	if err != nil {
		t.Fatalf("unsafe queries must surface as tool errors, got: %v", err)
	}
	if out.Error == nil || out.Error.ErrorType != ErrTypeUnsafeQuery {
		t.Errorf("Error = %v, want %s", out.Error, ErrTypeUnsafeQuery)
	}
}

func TestExecuteSQLQuery_Truncation(t *testing.T) {
	var b strings.Builder
	b.WriteString("n\n")
	total := MaxResultRows + 50
	for i := 0; i < total; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	res := &session.Resource{
		ID:           uuid.New(),
		OriginalName: "big.csv",
		StoredPath:   writeCSV(t, "big.csv", b.String()),
	}
	ts, tctx := newTestToolset(t, res)

	out, err := ts.ExecuteSQLQuery(tctx, ExecuteSQLInput{
		Dataset: "big.csv",
		Query:   "SELECT n FROM csv_data",
	})
	if err != nil {
		t.Fatalf("ExecuteSQLQuery: %v", err)
	}
	if out.Error != nil {
		t.Fatalf("unexpected tool error: %v", out.Error)
	}
	if len(out.Rows) != MaxResultRows {
		t.Errorf("len(Rows) = %d, want %d", len(out.Rows), MaxResultRows)
	}
	if !out.Truncated {
		t.Error("Truncated should be true")
	}
	if out.TotalRows != total {
		t.Errorf("TotalRows = %d, want %d", out.TotalRows, total)
	}
}

func TestExecuteSQLQuery_InvalidArgs(t *testing.T) {
	ts, tctx := newTestToolset(t, salesResource(t))

	tests := []struct {
		name  string
		input ExecuteSQLInput
	}{
		{"empty dataset", ExecuteSQLInput{Query: "SELECT 1"}},
		{"empty query", ExecuteSQLInput{Dataset: "sales.csv"}},
		{"blank query", ExecuteSQLInput{Dataset: "sales.csv", Query: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ts.ExecuteSQLQuery(tctx, tt.input)
			if err != nil {
				t.Fatalf("tool errors must be returned in the output, got: %v", err)
			}
			if out.Error == nil || out.Error.ErrorType != ErrTypeInvalidArgs {
				t.Errorf("Error = %v, want %s", out.Error, ErrTypeInvalidArgs)
			}
		})
	}
}

func TestToolErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *ToolError
		want string
	}{
		{"both fields", &ToolError{ErrorType: "QueryError", Message: "boom"}, "QueryError: boom"},
		{"type only", &ToolError{ErrorType: "QueryError"}, "QueryError"},
		{"message only", &ToolError{Message: "boom"}, "boom"},
		{"nil", nil, "<nil ToolError>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
