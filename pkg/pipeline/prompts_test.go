package pipeline

import (
	"strings"
	"testing"

	"bloomgraph/pkg/common"
)

func TestFormatGenerationPrompt(t *testing.T) {
	origin := common.Origin{Title: "Graph Databases", Context: "A graph database stores nodes and edges."}

	prompt, err := FormatGenerationPrompt(origin, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "Title: Graph Databases") {
		t.Error("prompt is missing the concept title")
	}
	if !strings.Contains(prompt, origin.Context) {
		t.Error("prompt is missing the concept context")
	}
	if strings.Contains(prompt, "{{") {
		t.Error("prompt still contains unreplaced placeholders")
	}
}

func TestFormatGenerationPromptEmptyContext(t *testing.T) {
	prompt, err := FormatGenerationPrompt(common.Origin{Title: "Bare"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "N/A") {
		t.Error("empty context should be rendered as N/A")
	}
}

func TestFormatGenerationPromptTruncatesContext(t *testing.T) {
	origin := common.Origin{
		Title:   "Long",
		Context: strings.Repeat("token soup with many words ", 200),
	}

	full, err := FormatGenerationPrompt(origin, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	truncated, err := FormatGenerationPrompt(origin, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(truncated) >= len(full) {
		t.Errorf("expected truncated prompt to be shorter: %d vs %d", len(truncated), len(full))
	}
}

func TestFormatDifficultyPrompt(t *testing.T) {
	units := []common.KnowledgeUnit{
		{UCID: "uc-1", Text: "Define a node."},
		{UCID: "uc-2", Text: "Explain edge traversal."},
	}

	prompt := FormatDifficultyPrompt(units)

	if !strings.Contains(prompt, "- ID: uc-1\n  Text: Define a node.") {
		t.Error("prompt is missing the first unit line")
	}
	if !strings.Contains(prompt, "- ID: uc-2") {
		t.Error("prompt is missing the second unit line")
	}
	if strings.Contains(prompt, "{{BATCH_OF_UCS}}") {
		t.Error("prompt still contains the units placeholder")
	}
}
