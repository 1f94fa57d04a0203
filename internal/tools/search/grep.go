package search

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgehq/forge/internal/agent"
)

// GrepTool searches workspace file contents with a regular expression.
type GrepTool struct {
	root string
}

// NewGrepTool creates a grep tool scoped to workspace.
func NewGrepTool(workspace string) *GrepTool {
	if workspace == "" {
		workspace = "."
	}
	return &GrepTool{root: workspace}
}

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Search workspace file contents for a regular expression." }

func (t *GrepTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Regular expression to search for."},
			"glob":    map[string]any{"type": "string", "description": "Optional glob to restrict which files are searched."},
		},
		"required": []string{"pattern"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// MaxGrepMatches caps the result size so a broad pattern can't blow up the
// tool-result payload.
const MaxGrepMatches = 200

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Glob    string `json:"glob"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return &agent.ToolResult{Content: "pattern is required", IsError: true}, nil
	}

	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid regular expression: %v", err), IsError: true}, nil
	}

	rootAbs, err := filepath.Abs(t.root)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	var lines []string
	walkErr := filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || len(lines) >= MaxGrepMatches {
			if d != nil && d.IsDir() && d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(rootAbs, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if input.Glob != "" && !matchGlob(input.Glob, rel) {
			return nil
		}
		if isLikelyBinary(path) {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		lineNo := 0
		for scanner.Scan() && len(lines) < MaxGrepMatches {
			lineNo++
			line := scanner.Text()
			if re.MatchString(line) {
				lines = append(lines, fmt.Sprintf("%s:%d:%s", rel, lineNo, line))
			}
		}
		return nil
	})
	if walkErr != nil {
		return &agent.ToolResult{Content: walkErr.Error(), IsError: true}, nil
	}

	if len(lines) == 0 {
		return &agent.ToolResult{Content: "(no matches)"}, nil
	}
	return &agent.ToolResult{Content: strings.Join(lines, "\n")}, nil
}

func isLikelyBinary(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".ico", ".pdf", ".zip", ".gz", ".so", ".dylib", ".exe", ".bin":
		return true
	default:
		return false
	}
}
