package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectInstructionFilenames are the per-directory filenames searched
// for project instructions, in the order spec §6 names them.
var ProjectInstructionFilenames = []string{"CLAUDE.md", "FORGE.md"}

// DiscoverProjectInstructions reads ~/.claude/CLAUDE.md, ~/.forge/FORGE.md,
// and every CLAUDE.md/FORGE.md found walking from the filesystem root
// down to cwd (outermost first), concatenates the found files with
// "\n\n---\n\n", and returns the result ready to inject under a
// "## Project Instructions" heading in the system prompt. Returns ""
// if nothing was found.
func DiscoverProjectInstructions(homeDir, cwd string) string {
	var sections []string

	if homeDir != "" {
		if text, ok := readIfExists(filepath.Join(homeDir, ".claude", "CLAUDE.md")); ok {
			sections = append(sections, text)
		}
		if text, ok := readIfExists(filepath.Join(homeDir, ".forge", "FORGE.md")); ok {
			sections = append(sections, text)
		}
	}

	for _, dir := range ancestorsOutermostFirst(cwd) {
		for _, name := range ProjectInstructionFilenames {
			if text, ok := readIfExists(filepath.Join(dir, name)); ok {
				sections = append(sections, text)
			}
		}
	}

	return strings.Join(sections, "\n\n---\n\n")
}

// RenderProjectInstructions wraps discovered instructions under the
// heading the system prompt expects them injected under. Returns ""
// when there is nothing to inject.
func RenderProjectInstructions(homeDir, cwd string) string {
	body := DiscoverProjectInstructions(homeDir, cwd)
	if body == "" {
		return ""
	}
	return "## Project Instructions\n\n" + body
}

func readIfExists(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", false
	}
	return text, true
}

// ancestorsOutermostFirst returns cwd and every ancestor directory up
// to the filesystem root, ordered root-first (outermost first) so
// instructions closer to cwd are concatenated later and take visual
// precedence in the assembled prompt.
func ancestorsOutermostFirst(cwd string) []string {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		abs = cwd
	}
	var chain []string
	for {
		chain = append(chain, abs)
		parent := filepath.Dir(abs)
		if parent == abs {
			break
		}
		abs = parent
	}
	// chain is currently cwd ... root; reverse to root ... cwd.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
