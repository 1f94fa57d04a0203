// Package todo implements the todo_write/todo_read tools of spec.md §4.2:
// an in-memory, per-session ordered checklist the model can maintain
// across turns. Grounded on internal/jobs' "small per-session mutable
// state behind a Tool" shape (a guarded in-memory map keyed by session).
package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/forgehq/forge/internal/agent"
)

// Status is a todo item's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Item is one entry in a session's todo list.
type Item struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status Status `json:"status"`
}

// List is the shared in-memory store, keyed by session id, behind a
// single mutex — sized for a local single-process assistant, not a
// distributed store.
type List struct {
	mu    sync.Mutex
	items map[string][]Item
}

// NewList creates an empty todo list store.
func NewList() *List {
	return &List{items: make(map[string][]Item)}
}

func (l *List) replace(sessionID string, items []Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[sessionID] = items
}

func (l *List) get(sessionID string) []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Item, len(l.items[sessionID]))
	copy(out, l.items[sessionID])
	return out
}

// sessionFromContext recovers the session id a tool call is executing
// under. Tools in this codebase receive only JSON params, so the session
// id is threaded through context by the executor (see agent.ToolConfig).
type sessionKey struct{}

// WithSession attaches a session id to ctx for todo tools to key off of.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func sessionFrom(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey{}).(string); ok {
		return v
	}
	return "default"
}

// WriteTool implements todo_write: replaces the session's todo list.
type WriteTool struct{ list *List }

// NewWriteTool creates a todo_write tool sharing list with its ReadTool
// counterpart.
func NewWriteTool(list *List) *WriteTool { return &WriteTool{list: list} }

func (t *WriteTool) Name() string        { return "todo_write" }
func (t *WriteTool) Description() string { return "Replace the current session's todo list." }

func (t *WriteTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":     map[string]any{"type": "string"},
						"text":   map[string]any{"type": "string"},
						"status": map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
					},
					"required": []string{"text"},
				},
			},
		},
		"required": []string{"items"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	for i := range input.Items {
		if input.Items[i].Status == "" {
			input.Items[i].Status = StatusPending
		}
		if input.Items[i].ID == "" {
			input.Items[i].ID = fmt.Sprintf("todo-%d", i+1)
		}
	}
	t.list.replace(sessionFrom(ctx), input.Items)
	return &agent.ToolResult{Content: fmt.Sprintf("saved %d todo item(s)", len(input.Items))}, nil
}

// ReadTool implements todo_read: returns the session's current todo list.
type ReadTool struct{ list *List }

// NewReadTool creates a todo_read tool sharing list with its WriteTool
// counterpart.
func NewReadTool(list *List) *ReadTool { return &ReadTool{list: list} }

func (t *ReadTool) Name() string        { return "todo_read" }
func (t *ReadTool) Description() string { return "Read the current session's todo list." }

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	items := t.list.get(sessionFrom(ctx))
	if len(items) == 0 {
		return &agent.ToolResult{Content: "(empty)"}, nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(data)}, nil
}
