package interact

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgehq/forge/internal/agent"
)

// PresentPlanTool implements present_plan: shows the human a proposed
// plan and waits for approval, rejection, or revision notes before the
// loop is allowed to act on it. Unlike ask_user_question the answer
// options are fixed (approve/reject) with free-text feedback attached.
type PresentPlanTool struct {
	manager *Manager
}

// NewPresentPlanTool creates a present_plan tool backed by manager.
func NewPresentPlanTool(manager *Manager) *PresentPlanTool {
	return &PresentPlanTool{manager: manager}
}

func (t *PresentPlanTool) Name() string { return "present_plan" }

func (t *PresentPlanTool) Description() string {
	return "Present a step-by-step plan to the human for approval before executing it."
}

func (t *PresentPlanTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"plan": map[string]any{
				"type":        "string",
				"description": "The plan, formatted for the human to review.",
			},
		},
		"required": []string{"plan"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *PresentPlanTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Plan string `json:"plan"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(input.Plan) == "" {
		return &agent.ToolResult{Content: "plan is required", IsError: true}, nil
	}
	req := t.manager.Create("plan", input.Plan, []string{"approve", "reject"})
	answer, err := t.manager.Wait(ctx, req.ID, DefaultAnswerTimeout)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("no decision received: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: answer}, nil
}
