package agent

import (
	"fmt"
	"strings"

	"github.com/talq0/talq/internal/tabular"
	"github.com/talq0/talq/internal/tools"
)

// ResourceMeta is the prompt builder's view of one attached dataset.
// Schema is nil when metadata loading failed for that resource; the entry
// then degrades to name and size only.
type ResourceMeta struct {
	Name      string
	SizeBytes int64
	Schema    *tabular.Schema
}

// BuildSystemPrompt produces the system instruction for one execution.
//
// Pure function: same input yields byte-for-byte identical output. It
// enumerates the attached datasets (with columns and row counts when known),
// the tool catalog, and behavioral guidance for the model.
func BuildSystemPrompt(resources []ResourceMeta) string {
	var b strings.Builder

	b.WriteString("You are a data analysis assistant. You answer questions about CSV datasets ")
	b.WriteString("attached to this conversation by generating and executing SQL queries.\n\n")

	if len(resources) == 0 {
		b.WriteString("No datasets are attached yet. Ask the user to attach a CSV file before ")
		b.WriteString("attempting any analysis.\n\n")
	} else {
		b.WriteString("Attached datasets:\n")
		for _, r := range resources {
			fmt.Fprintf(&b, "- %s (%d bytes)", r.Name, r.SizeBytes)
			if r.Schema != nil {
				fmt.Fprintf(&b, ", %d rows, columns:", r.Schema.RowCount)
				for _, c := range r.Schema.Columns {
					fmt.Fprintf(&b, " %s(%s)", c.Name, c.Kind)
				}
			} else {
				b.WriteString(", schema unavailable")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Available tools:\n")
	fmt.Fprintf(&b, "- %s: inspect a dataset's columns, inferred column kinds, row count, and sample rows.\n", tools.ToolLoadCSVData)
	fmt.Fprintf(&b, "- %s: run a read-only SQL SELECT statement against a dataset. ", tools.ToolExecuteSQLQuery)
	b.WriteString("All columns are TEXT; CAST explicitly for numeric operations, e.g. AVG(CAST(amount AS REAL)).\n\n")

	b.WriteString("Guidelines:\n")
	b.WriteString("- When several datasets are attached, state which one you are using; ask the user if it is ambiguous.\n")
	fmt.Fprintf(&b, "- Prefer %s with aggregation over fetching raw rows and reasoning about them yourself.\n", tools.ToolExecuteSQLQuery)
	b.WriteString("- Keep query results small: aggregate, or use LIMIT. Large results are truncated.\n")
	b.WriteString("- If a tool reports an error, correct your arguments or query and retry; if the request cannot be satisfied, explain why.\n")
	b.WriteString("- Be concise. Lead with the answer, then briefly mention how it was computed.\n")

	return b.String()
}
