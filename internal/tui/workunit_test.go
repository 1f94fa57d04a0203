package tui

import (
	"testing"
	"time"

	"github.com/forgehq/forge/pkg/models"
)

func TestThrobIndexFormula(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		n       int
		want    int
	}{
		{0, 4, 0},
		{199 * time.Millisecond, 4, 0},
		{200 * time.Millisecond, 4, 1},
		{799 * time.Millisecond, 4, 3},
		{800 * time.Millisecond, 4, 0},
	}
	for _, c := range cases {
		if got := ThrobIndex(c.elapsed, c.n); got != c.want {
			t.Errorf("ThrobIndex(%v, %d) = %d, want %d", c.elapsed, c.n, got, c.want)
		}
	}
}

func TestWorkUnitSubRowLifecycle(t *testing.T) {
	wu := NewWorkUnit("turn-1", time.Now())
	wu.UpsertSubRow(&models.ToolEvent{ToolCallID: "call-1", ToolName: "read", Stage: models.ToolEventRequested})
	if len(wu.SubRows) != 1 {
		t.Fatalf("expected 1 sub-row, got %d", len(wu.SubRows))
	}
	wu.UpsertSubRow(&models.ToolEvent{ToolCallID: "call-1", ToolName: "read", Stage: models.ToolEventSucceeded, Output: "file contents"})
	if len(wu.SubRows) != 1 {
		t.Fatalf("expected update in place, got %d rows", len(wu.SubRows))
	}
	if wu.SubRows[0].Status != SubRowDone {
		t.Fatalf("expected SubRowDone, got %v", wu.SubRows[0].Status)
	}
}

func TestWorkUnitRenderIncludesFinalText(t *testing.T) {
	wu := NewWorkUnit("turn-1", time.Now())
	wu.AppendText("hello ")
	wu.AppendText("world")
	wu.Complete()
	lines := wu.Render(time.Now())
	found := false
	for _, l := range lines {
		if l == "hello world" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected rendered lines to include accumulated text, got %v", lines)
	}
}
