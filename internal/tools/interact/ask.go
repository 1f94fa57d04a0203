// Package interact implements the ask_user_question and present_plan
// standard tools (spec.md §4.2): both hand a question/plan to the human
// and block the calling loop until a decision arrives. Grounded on
// internal/tools/policy's ApprovalManager — a pending-request map
// polled by WaitForApproval — generalized here to carry arbitrary
// answer text instead of an approve/deny verdict.
//
// Per spec.md §4.2, ask_user_question is not dispatched like an
// ordinary tool: the agent loop must intercept calls to it directly so
// it can suspend the turn and surface the question through the TUI
// rather than running it through the normal tool-result round trip.
// Manager is exposed here so the loop and the TUI can share it.
package interact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/forgehq/forge/internal/agent"
	"github.com/google/uuid"
)

// ErrAnswerTimeout is returned when no human answer arrives in time.
var ErrAnswerTimeout = errors.New("interact: timed out waiting for a human answer")

// Status mirrors policy.ApprovalStatus's pending/decided shape.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAnswered Status = "answered"
)

// Request is a single outstanding question or plan awaiting a human
// response.
type Request struct {
	ID        string
	Kind      string // "question" or "plan"
	Prompt    string
	Options   []string
	Status    Status
	Answer    string
	CreatedAt time.Time
}

// Manager tracks pending human-in-the-loop requests, the same shape as
// policy.ApprovalManager but keyed on free-text answers rather than an
// approve/deny verdict.
type Manager struct {
	mu       sync.Mutex
	requests map[string]*Request
	onAsk    func(*Request)
}

// NewManager creates an empty interaction manager.
func NewManager() *Manager {
	return &Manager{requests: make(map[string]*Request)}
}

// SetAskHandler registers a callback invoked whenever a new request is
// created, so the TUI can render it immediately instead of polling.
func (m *Manager) SetAskHandler(fn func(*Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAsk = fn
}

// Create registers a new pending request and notifies the ask handler.
func (m *Manager) Create(kind, prompt string, options []string) *Request {
	req := &Request{
		ID:        uuid.NewString(),
		Kind:      kind,
		Prompt:    prompt,
		Options:   options,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.requests[req.ID] = req
	handler := m.onAsk
	m.mu.Unlock()
	if handler != nil {
		handler(req)
	}
	return req
}

// Answer records a human response to a pending request.
func (m *Manager) Answer(id, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("interact: unknown request %s", id)
	}
	req.Answer = answer
	req.Status = StatusAnswered
	return nil
}

func (m *Manager) get(id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("interact: unknown request %s", id)
	}
	return req, nil
}

// Wait blocks until id is answered, ctx is cancelled, or timeout elapses.
func (m *Manager) Wait(ctx context.Context, id string, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", ErrAnswerTimeout
		case <-ticker.C:
			req, err := m.get(id)
			if err != nil {
				return "", err
			}
			if req.Status == StatusAnswered {
				return req.Answer, nil
			}
		}
	}
}

// DefaultAnswerTimeout bounds how long the loop suspends for a human
// reply before giving up and letting the agent proceed without one.
const DefaultAnswerTimeout = 10 * time.Minute

// AskUserQuestionTool implements ask_user_question. The agent loop is
// expected to special-case this tool's name and call Manager directly
// rather than routing through Execute in the normal tool-call path, but
// Execute is still provided so the tool can be registered in the
// schema-advertising registry like any other tool.
type AskUserQuestionTool struct {
	manager *Manager
}

// NewAskUserQuestionTool creates an ask_user_question tool backed by manager.
func NewAskUserQuestionTool(manager *Manager) *AskUserQuestionTool {
	return &AskUserQuestionTool{manager: manager}
}

func (t *AskUserQuestionTool) Name() string { return "ask_user_question" }

func (t *AskUserQuestionTool) Description() string {
	return "Ask the human a clarifying question and wait for their answer before continuing."
}

func (t *AskUserQuestionTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string"},
			"options": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Optional suggested answers; the human may also answer freely.",
			},
		},
		"required": []string{"question"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *AskUserQuestionTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if input.Question == "" {
		return &agent.ToolResult{Content: "question is required", IsError: true}, nil
	}
	req := t.manager.Create("question", input.Question, input.Options)
	answer, err := t.manager.Wait(ctx, req.ID, DefaultAnswerTimeout)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("no answer received: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: answer}, nil
}
