package tui

import (
	"testing"

	"github.com/forgehq/forge/internal/tools/interact"
)

func TestDialogSelectsOptionDirectly(t *testing.T) {
	req := &interact.Request{Prompt: "Proceed?", Options: []string{"yes", "no"}}
	d := NewDialog(req, true)

	out := d.HandleEvent(Event{IsDialogKey: true, DialogKey: DialogKeyDown})
	if out.Done {
		t.Fatal("navigation alone should not finish the dialog")
	}
	out = d.HandleEvent(Event{IsDialogKey: true, DialogKey: DialogKeyEnter})
	if !out.Done || out.Answer != "no" {
		t.Fatalf("expected answer 'no', got %+v", out)
	}
}

func TestDialogOtherRowAlwaysNavigable(t *testing.T) {
	req := &interact.Request{Prompt: "Which file?", Options: []string{"a.go"}}
	d := NewDialog(req, true)
	if len(d.options) != 2 || d.options[1] != otherLabel {
		t.Fatalf("expected Other row appended, got %v", d.options)
	}

	// Navigate to "Other" and enter free-form mode.
	d.HandleEvent(Event{IsDialogKey: true, DialogKey: DialogKeyDown})
	out := d.HandleEvent(Event{IsDialogKey: true, DialogKey: DialogKeyEnter})
	if out.Done {
		t.Fatal("selecting Other should enter editing mode, not finish immediately")
	}
	if !d.editingOther {
		t.Fatal("expected editingOther to be set")
	}

	for _, r := range "b.go" {
		d.HandleEvent(Event{IsDialogKey: true, DialogInput: r})
	}
	out = d.HandleEvent(Event{IsDialogKey: true, DialogKey: DialogKeyEnter})
	if !out.Done || out.Answer != "b.go" {
		t.Fatalf("expected free-form answer 'b.go', got %+v", out)
	}
}

func TestDialogWithoutFreeformHasNoOtherRow(t *testing.T) {
	req := &interact.Request{Prompt: "Approve?", Options: []string{"approve", "reject"}}
	d := NewDialog(req, false)
	if len(d.options) != 2 {
		t.Fatalf("expected exactly the two given options, got %v", d.options)
	}
}
