package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiscoverProjectInstructionsConcatenatesOutermostFirst(t *testing.T) {
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, ".claude"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".claude", "CLAUDE.md"), []byte("home instructions"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	sub := filepath.Join(root, "project", "pkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "CLAUDE.md"), []byte("root level"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "project", "CLAUDE.md"), []byte("project level"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := DiscoverProjectInstructions(home, sub)

	homeIdx := strings.Index(got, "home instructions")
	rootIdx := strings.Index(got, "root level")
	projectIdx := strings.Index(got, "project level")
	if homeIdx == -1 || rootIdx == -1 || projectIdx == -1 {
		t.Fatalf("expected all three sections present, got %q", got)
	}
	if !(homeIdx < rootIdx && rootIdx < projectIdx) {
		t.Fatalf("expected home, then root, then project order, got %q", got)
	}
}

func TestDiscoverProjectInstructionsEmptyWhenNothingFound(t *testing.T) {
	got := DiscoverProjectInstructions(t.TempDir(), t.TempDir())
	if got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestRenderProjectInstructionsAddsHeading(t *testing.T) {
	home := t.TempDir()
	os.MkdirAll(filepath.Join(home, ".forge"), 0o755)
	os.WriteFile(filepath.Join(home, ".forge", "FORGE.md"), []byte("brand instructions"), 0o644)

	got := RenderProjectInstructions(home, t.TempDir())
	if !strings.HasPrefix(got, "## Project Instructions\n\n") {
		t.Fatalf("expected heading prefix, got %q", got)
	}
	if !strings.Contains(got, "brand instructions") {
		t.Fatalf("expected body present, got %q", got)
	}
}

func TestRenderProjectInstructionsEmpty(t *testing.T) {
	if got := RenderProjectInstructions(t.TempDir(), t.TempDir()); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
