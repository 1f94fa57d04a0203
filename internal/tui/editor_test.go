package tui

import "testing"

func TestLineEditorUnicodeSafeOperations(t *testing.T) {
	var e LineEditor
	for _, r := range "héllo" {
		e.Insert(r)
	}
	if e.Len() != 5 {
		t.Fatalf("expected 5 runes, got %d", e.Len())
	}
	e.Home()
	e.Right()
	e.Right()
	// Cursor now after "hé" (2 runes), deleting forward removes 'l'.
	e.Delete()
	if e.String() != "hélo" {
		t.Fatalf("got %q", e.String())
	}
	e.End()
	e.Backspace()
	if e.String() != "hél" {
		t.Fatalf("got %q", e.String())
	}
}

func TestLineEditorInsertAtCursor(t *testing.T) {
	var e LineEditor
	e.SetText("ac")
	e.Home()
	e.Right()
	e.Insert('b')
	if e.String() != "abc" {
		t.Fatalf("got %q", e.String())
	}
	if e.Cursor() != 2 {
		t.Fatalf("expected cursor at 2, got %d", e.Cursor())
	}
}

func TestLineEditorBoundaryMovement(t *testing.T) {
	var e LineEditor
	e.Left() // no-op at 0
	if e.Cursor() != 0 {
		t.Fatalf("expected cursor clamped at 0, got %d", e.Cursor())
	}
	e.SetText("ab")
	e.Right()
	e.Right()
	e.Right() // no-op at end
	if e.Cursor() != 2 {
		t.Fatalf("expected cursor clamped at len, got %d", e.Cursor())
	}
}
