package tui

import (
	"fmt"

	"github.com/forgehq/forge/internal/tools/interact"
)

// otherLabel is the always-present free-form row spec.md §4.8 requires
// ("a dialog's options list includes an always-navigable 'Other
// (custom input)' row when free-form input is allowed").
const otherLabel = "Other (custom input)"

// Dialog renders one pending interact.Request (an ask_user_question or
// present_plan call) over the viewport and turns InputLoop events into
// a final answer string. It owns the keyboard for as long as it is
// open — the caller must InputLoop.SetDialogMode(true) while one is
// active and feed it every Event via HandleEvent.
type Dialog struct {
	req          *interact.Request
	options      []string
	selected     int
	editingOther bool
	other        LineEditor
	freeform     bool
}

// NewDialog builds a Dialog for req. freeform controls whether the
// "Other" row is offered; callers pass true unless the request kind
// forbids free text entirely.
func NewDialog(req *interact.Request, freeform bool) *Dialog {
	opts := append([]string(nil), req.Options...)
	if freeform {
		opts = append(opts, otherLabel)
	}
	return &Dialog{req: req, options: opts, freeform: freeform}
}

// Request returns the underlying interact.Request this dialog answers.
func (d *Dialog) Request() *interact.Request { return d.req }

// Outcome is returned by HandleEvent once the human has made a final
// choice (Done true) or is still navigating (Done false).
type Outcome struct {
	Done   bool
	Answer string
}

// HandleEvent advances the dialog's state by one InputLoop event.
func (d *Dialog) HandleEvent(ev Event) Outcome {
	if d.editingOther {
		return d.handleOtherEditing(ev)
	}
	if !ev.IsDialogKey {
		return Outcome{}
	}
	switch ev.DialogKey {
	case DialogKeyUp:
		if d.selected > 0 {
			d.selected--
		}
	case DialogKeyDown:
		if d.selected < len(d.options)-1 {
			d.selected++
		}
	case DialogKeyEnter:
		if d.freeform && d.selected == len(d.options)-1 {
			d.editingOther = true
			return Outcome{}
		}
		if len(d.options) == 0 {
			return Outcome{}
		}
		return Outcome{Done: true, Answer: d.options[d.selected]}
	case DialogKeyEscape:
		// No cancel affordance in the wire protocol (Manager.Wait has no
		// "cancelled" state) — escape is ignored rather than silently
		// answering with something the tool call didn't ask for.
	}
	return Outcome{}
}

func (d *Dialog) handleOtherEditing(ev Event) Outcome {
	if ev.IsDialogKey && ev.DialogKey == DialogKeyEnter {
		return Outcome{Done: true, Answer: d.other.String()}
	}
	if ev.IsDialogKey && ev.DialogKey == DialogKeyEscape {
		d.editingOther = false
		return Outcome{}
	}
	if ev.IsDialogKey {
		switch ev.DialogInput {
		case 0x7f, 0x08:
			d.other.Backspace()
		case 0:
			// non-printable key already handled above (Up/Down/Enter/Escape)
		default:
			d.other.Insert(ev.DialogInput)
		}
	}
	return Outcome{}
}

// Render produces the dialog's lines: the prompt, each option with the
// currently-selected row marked, and (while editing) the free-form
// field with its cursor.
func (d *Dialog) Render() []string {
	lines := []string{d.req.Prompt}
	for i, opt := range d.options {
		marker := "  "
		if i == d.selected {
			marker = "> "
		}
		lines = append(lines, marker+opt)
	}
	if d.editingOther {
		lines = append(lines, fmt.Sprintf("> %s_", d.other.String()))
	}
	return lines
}
