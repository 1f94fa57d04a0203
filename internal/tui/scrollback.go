package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Scrollback is the permanent, terminal-native-scrollable layer of
// spec.md §4.8: each message is written above the fixed inline viewport
// exactly once, using the terminal's own "insert lines above cursor"
// capability (CSI L within the viewport's top row) rather than being
// redrawn by the diff-blit loop that owns the viewport below it.
type Scrollback struct {
	mu       sync.Mutex
	w        io.Writer
	written  map[string]bool
	viewRows int // current inline viewport height, for cursor placement
}

// NewScrollback wraps w (the real terminal, or a buffer in tests).
func NewScrollback(w io.Writer) *Scrollback {
	return &Scrollback{w: w, written: make(map[string]bool)}
}

// SetViewportHeight records how tall the inline viewport currently is,
// so Emit knows how many rows to move up from the cursor's resting
// position (the bottom of the viewport) before inserting.
func (s *Scrollback) SetViewportHeight(rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewRows = rows
}

// Emit writes text above the viewport, gated by "is id already present
// in the scrollback index" (spec.md §8 invariant 4: each message ID
// appears in the scrollback index at most once). A repeat call with the
// same id is a silent no-op.
func (s *Scrollback) Emit(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written[id] {
		return
	}
	s.written[id] = true

	lines := strings.Split(text, "\n")
	var b strings.Builder
	// Move up to the top row of the inline viewport, insert one blank
	// line per line of the message (pushing the viewport and anything
	// above it down/into native scrollback), then write the text there,
	// and return the cursor to where the viewport expects it.
	if s.viewRows > 0 {
		fmt.Fprintf(&b, "\x1b[%dA", s.viewRows)
	}
	fmt.Fprintf(&b, "\x1b[%dL", len(lines))
	for i, line := range lines {
		b.WriteString(line)
		if i < len(lines)-1 {
			b.WriteString("\r\n")
		}
	}
	b.WriteString("\r\n")
	if s.viewRows > 0 {
		fmt.Fprintf(&b, "\x1b[%dB", s.viewRows)
	}
	_, _ = io.WriteString(s.w, b.String())
}

// Has reports whether id has already been emitted (used by tests and by
// callers deciding whether a message still needs flushing).
func (s *Scrollback) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written[id]
}
