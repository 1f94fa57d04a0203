// Package memtool exposes the create_memory standard tool (spec.md §4.2):
// a thin wrapper handing tagged text off to the hierarchical memory tree.
// Grounded on internal/memtree.Tree.Insert for the actual indexing work
// and on internal/tools/files for the Tool-shape conventions of this repo.
package memtool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/memtree"
)

// CreateMemoryTool inserts model-supplied text into the memory tree,
// optionally tagged as explicitly important.
type CreateMemoryTool struct {
	tree *memtree.Tree
}

// NewCreateMemoryTool creates a create_memory tool backed by tree.
func NewCreateMemoryTool(tree *memtree.Tree) *CreateMemoryTool {
	return &CreateMemoryTool{tree: tree}
}

func (t *CreateMemoryTool) Name() string { return "create_memory" }

func (t *CreateMemoryTool) Description() string {
	return "Save a durable memory (a fact, preference, or decision) for recall in later sessions."
}

func (t *CreateMemoryTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The memory content to store.",
			},
			"important": map[string]any{
				"type":        "boolean",
				"description": "Mark this memory as explicitly important (boosts future retrieval).",
			},
		},
		"required": []string{"text"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *CreateMemoryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Text      string `json:"text"`
		Important bool   `json:"important"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return &agent.ToolResult{Content: "text is required", IsError: true}, nil
	}
	if t.tree == nil {
		return &agent.ToolResult{Content: "memory tree is not configured", IsError: true}, nil
	}

	normalized := memtree.NormalizeForIndexing(text)
	importance := memtree.ClassifyImportance(normalized, input.Important)

	id, ok, err := t.tree.Insert(ctx, normalized, importance)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to store memory: %v", err), IsError: true}, nil
	}
	if !ok {
		return &agent.ToolResult{Content: "memory was filtered as low-signal noise and not stored"}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("stored memory %d (importance=%s)", id, importance)}, nil
}
