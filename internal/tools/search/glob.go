// Package search implements the glob and grep tools of spec.md §4.2. Their
// file-format/matching details are explicitly out of scope per spec.md
// §1 ("file-format details of individual tools (read/glob/grep/bash)");
// this package only needs to satisfy the Tool interface and the registry's
// execution contract, grounded on internal/tools/files' Tool shape and its
// Resolver for workspace-root path scoping.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/tools/files"
)

// GlobTool lists workspace files matching a glob pattern.
type GlobTool struct {
	resolver files.Resolver
	root     string
}

// NewGlobTool creates a glob tool scoped to workspace.
func NewGlobTool(workspace string) *GlobTool {
	if workspace == "" {
		workspace = "."
	}
	return &GlobTool{resolver: files.Resolver{Root: workspace}, root: workspace}
}

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "List workspace files matching a glob pattern (e.g. \"**/*.go\")." }

func (t *GlobTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob pattern, relative to the workspace root.",
			},
		},
		"required": []string{"pattern"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	pattern := strings.TrimSpace(input.Pattern)
	if pattern == "" {
		return &agent.ToolResult{Content: "pattern is required", IsError: true}, nil
	}

	rootAbs, err := filepath.Abs(t.root)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	var matches []string
	walkErr := filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(rootAbs, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if matchGlob(pattern, rel) {
			matches = append(matches, rel)
		}
		return nil
	})
	if walkErr != nil {
		return &agent.ToolResult{Content: walkErr.Error(), IsError: true}, nil
	}

	sort.Strings(matches)
	if len(matches) == 0 {
		return &agent.ToolResult{Content: "(no matches)"}, nil
	}
	return &agent.ToolResult{Content: strings.Join(matches, "\n")}, nil
}

// matchGlob supports a "**" path-spanning wildcard on top of
// filepath.Match's single-segment "*"/"?" semantics.
func matchGlob(pattern, name string) bool {
	if strings.Contains(pattern, "**") {
		parts := strings.SplitN(pattern, "**", 2)
		prefix := strings.TrimSuffix(parts[0], "/")
		suffix := strings.TrimPrefix(parts[1], "/")
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			return false
		}
		if suffix == "" {
			return true
		}
		matched, _ := filepath.Match(suffix, filepath.Base(name))
		if matched {
			return true
		}
		return strings.HasSuffix(name, suffix)
	}
	matched, _ := filepath.Match(pattern, name)
	if matched {
		return true
	}
	matched, _ = filepath.Match(pattern, filepath.Base(name))
	return matched
}
