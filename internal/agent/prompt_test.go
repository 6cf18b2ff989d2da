package agent

import (
	"strings"
	"testing"

	"github.com/talq0/talq/internal/tabular"
	"github.com/talq0/talq/internal/tools"
)

func TestBuildSystemPrompt_Deterministic(t *testing.T) {
	metas := []ResourceMeta{
		{
			Name:      "sales.csv",
			SizeBytes: 41,
			Schema: &tabular.Schema{
				Columns: []tabular.Column{
					{Name: "Region", Kind: tabular.KindText},
					{Name: "Amount", Kind: tabular.KindNumeric},
				},
				RowCount: 3,
			},
		},
		{Name: "broken.csv", SizeBytes: 12},
	}

	first := BuildSystemPrompt(metas)
	second := BuildSystemPrompt(metas)
	if first != second {
		t.Fatal("prompt is not byte-for-byte stable for identical input")
	}

	for _, want := range []string{
		"sales.csv",
		"41 bytes",
		"3 rows",
		"Region(text)",
		"Amount(numeric)",
		"broken.csv",
		"schema unavailable",
		tools.ToolLoadCSVData,
		tools.ToolExecuteSQLQuery,
		"CAST",
	} {
		if !strings.Contains(first, want) {
			t.Errorf("prompt is missing %q", want)
		}
	}
}

func TestBuildSystemPrompt_NoResources(t *testing.T) {
	got := BuildSystemPrompt(nil)
	if !strings.Contains(got, "No datasets are attached") {
		t.Errorf("empty-resource prompt should tell the model no data is attached, got:\n%s", got)
	}
	if got != BuildSystemPrompt([]ResourceMeta{}) {
		t.Error("nil and empty resource lists should produce identical prompts")
	}
}
