package tui

import (
	"fmt"
	"time"

	"github.com/forgehq/forge/pkg/models"
)

// Lifecycle is a WorkUnit's coarse phase.
type Lifecycle int

const (
	LifecycleInProgress Lifecycle = iota
	LifecycleComplete
)

// throbFrames are the spinner glyphs cycled through while a WorkUnit is
// in progress. Chosen to render in any UTF-8 terminal without a Nerd
// Font, matching the ambient stack's avoidance of font-dependent icons
// elsewhere in this codebase.
var throbFrames = []rune{'|', '/', '-', '\\'}

// ThrobIndex computes the animation frame for elapsed wall time, per
// spec.md §4.8: `(elapsed_ms / 200) mod N`. No timer goroutine is
// needed — the renderer's periodic blit tick recomputes this on every
// call to Render.
func ThrobIndex(elapsed time.Duration, n int) int {
	if n <= 0 {
		return 0
	}
	ms := elapsed.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return int((ms / 200) % int64(n))
}

// SubRowStatus is one tool call's display state within a WorkUnit.
type SubRowStatus int

const (
	SubRowPending SubRowStatus = iota
	SubRowRunning
	SubRowDone
	SubRowFailed
	SubRowDenied
)

// SubRow is one tool call's line within a WorkUnit, transitioning from
// "pending" to a completion line as spec.md §3 describes.
type SubRow struct {
	ToolCallID string
	ToolName   string
	Status     SubRowStatus
	Summary    string // one-line completion/error summary once settled
}

func (r SubRow) render() string {
	switch r.Status {
	case SubRowPending:
		return fmt.Sprintf("  ⋯ %s", r.ToolName)
	case SubRowRunning:
		return fmt.Sprintf("  → %s", r.ToolName)
	case SubRowDone:
		if r.Summary != "" {
			return fmt.Sprintf("  ✓ %s — %s", r.ToolName, r.Summary)
		}
		return fmt.Sprintf("  ✓ %s", r.ToolName)
	case SubRowFailed:
		return fmt.Sprintf("  ✗ %s — %s", r.ToolName, r.Summary)
	case SubRowDenied:
		return fmt.Sprintf("  ⊘ %s denied", r.ToolName)
	default:
		return fmt.Sprintf("  %s", r.ToolName)
	}
}

// WorkUnit is the display state for one turn of the agent loop (spec.md
// §3/§8.9): a header with an elapsed-time-driven spinner, an ordered
// list of tool sub-rows, and an optional final text body. Its render
// output depends only on elapsed wall time and accumulated deltas —
// nothing here spins up its own animation goroutine.
type WorkUnit struct {
	ID        string
	Lifecycle Lifecycle
	StartedAt time.Time
	SubRows   []SubRow
	FinalText string

	subIndex map[string]int
}

// NewWorkUnit starts a fresh in-progress WorkUnit with the given ID
// (typically the assistant message or turn ID) at the current time.
func NewWorkUnit(id string, startedAt time.Time) *WorkUnit {
	return &WorkUnit{
		ID:        id,
		Lifecycle: LifecycleInProgress,
		StartedAt: startedAt,
		subIndex:  make(map[string]int),
	}
}

// AppendText accumulates a streamed text delta into the final body.
func (w *WorkUnit) AppendText(delta string) {
	w.FinalText += delta
}

// UpsertSubRow creates or updates the sub-row for a tool call, keeping
// call order stable (a row already present is updated in place; a new
// one is appended).
func (w *WorkUnit) UpsertSubRow(evt *models.ToolEvent) {
	if evt == nil {
		return
	}
	row := SubRow{ToolCallID: evt.ToolCallID, ToolName: evt.ToolName}
	switch evt.Stage {
	case models.ToolEventRequested, models.ToolEventApprovalRequired:
		row.Status = SubRowPending
	case models.ToolEventStarted, models.ToolEventRetrying:
		row.Status = SubRowRunning
	case models.ToolEventSucceeded:
		row.Status = SubRowDone
		row.Summary = summarize(evt.Output)
	case models.ToolEventFailed:
		row.Status = SubRowFailed
		row.Summary = summarize(evt.Error)
	case models.ToolEventDenied:
		row.Status = SubRowDenied
	}

	if idx, ok := w.subIndex[evt.ToolCallID]; ok {
		w.SubRows[idx] = row
		return
	}
	w.subIndex[evt.ToolCallID] = len(w.SubRows)
	w.SubRows = append(w.SubRows, row)
}

// Complete marks the WorkUnit done; its header stops animating.
func (w *WorkUnit) Complete() { w.Lifecycle = LifecycleComplete }

// Render returns the WorkUnit's lines as of now (elapsed time is
// measured against StartedAt, not cached, so the spinner advances on
// every call without any background goroutine of its own).
func (w *WorkUnit) Render(now time.Time) []string {
	lines := []string{w.headerLine(now)}
	for _, row := range w.SubRows {
		lines = append(lines, row.render())
	}
	if w.FinalText != "" {
		lines = append(lines, "")
		lines = append(lines, splitLines(w.FinalText)...)
	}
	return lines
}

func (w *WorkUnit) headerLine(now time.Time) string {
	elapsed := now.Sub(w.StartedAt)
	if w.Lifecycle == LifecycleComplete {
		return fmt.Sprintf("✓ done (%.1fs)", elapsed.Seconds())
	}
	frame := throbFrames[ThrobIndex(elapsed, len(throbFrames))]
	return fmt.Sprintf("%c working… (%.1fs)", frame, elapsed.Seconds())
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func summarize(s string) string {
	const max = 80
	s = StripANSI(s)
	if i := indexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return s
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
