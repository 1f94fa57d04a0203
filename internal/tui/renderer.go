package tui

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// DefaultFrameRate is the diff-blit tick rate spec.md §4.8 specifies
// (20 FPS).
const DefaultFrameRate = 20

// beginSyncUpdate/endSyncUpdate bracket a frame in the terminal
// synchronized-update mode (DEC private mode 2026). Terminals that
// don't implement it ignore the sequence entirely, so it is safe to
// emit unconditionally rather than probing terminfo for it first.
const (
	beginSyncUpdate = "\x1b[?2026h"
	endSyncUpdate   = "\x1b[?2026l"
)

// Renderer owns the inline viewport: a shadow Buffer rebuilt every tick
// from the current WorkUnit/status/input state, diffed against the
// previous frame, and blitted row-by-row so unchanged rows never incur
// a terminal write (spec.md §4.8).
type Renderer struct {
	out    io.Writer
	prev   *Buffer
	width  int
	height int
}

// NewRenderer wraps out for a width x height inline viewport. Callers
// writing to a real console should pass it through
// github.com/mattn/go-colorable first so ANSI sequences degrade
// correctly on legacy Windows consoles; out is used as-is here so tests
// can target a plain bytes.Buffer.
func NewRenderer(out io.Writer, width, height int) *Renderer {
	return &Renderer{
		out:    out,
		width:  width,
		height: height,
	}
}

// Width and Height expose the configured viewport dimensions.
func (r *Renderer) Width() int  { return r.width }
func (r *Renderer) Height() int { return r.height }

// Resize changes the viewport dimensions, forcing a full redraw on the
// next Render since the previous frame's geometry no longer applies.
func (r *Renderer) Resize(width, height int) {
	r.width, r.height = width, height
	r.prev = nil
}

// Render diffs frame against the previously blitted frame and writes
// only the rows that changed. Passing the same *Buffer contents twice
// in a row (no new deltas) produces zero terminal writes.
func (r *Renderer) Render(frame *Buffer) {
	if frame.Width != r.width || frame.Height != r.height {
		// Caller built a buffer of the wrong size; nothing sane to blit.
		return
	}

	var changed []int
	for row := 0; row < frame.Height; row++ {
		if frame.RowChanged(r.prev, row) {
			changed = append(changed, row)
		}
	}
	if len(changed) == 0 {
		return
	}

	var b strings.Builder
	b.WriteString(beginSyncUpdate)
	// Cursor rests at the bottom-left of the viewport between renders;
	// move up to row 0 before addressing individual rows by offset.
	fmt.Fprintf(&b, "\x1b[%dA\r", frame.Height-1)
	lastRow := 0
	for _, row := range changed {
		if row > lastRow {
			fmt.Fprintf(&b, "\x1b[%dB", row-lastRow)
		} else if row < lastRow {
			fmt.Fprintf(&b, "\x1b[%dA", lastRow-row)
		}
		b.WriteString("\r\x1b[K")
		b.WriteString(frame.RowText(row))
		lastRow = row
	}
	if frame.Height-1 > lastRow {
		fmt.Fprintf(&b, "\x1b[%dB", frame.Height-1-lastRow)
	} else if frame.Height-1 < lastRow {
		fmt.Fprintf(&b, "\x1b[%dA", lastRow-(frame.Height-1))
	}
	b.WriteString(endSyncUpdate)

	_, _ = io.WriteString(r.out, b.String())
	r.prev = frame
}

// ComposeViewport lays out the inline viewport's shadow buffer for one
// tick: a separator, the WorkUnit's bottom-aligned lines, and a status
// line, in that order from top to bottom within the fixed height.
// Panics are never raised by a too-tall WorkUnit — BottomAlign simply
// drops its oldest lines, leaving them recoverable from scrollback.
func ComposeViewport(width, height int, statusLine string, wu *WorkUnit, inputLine string, now time.Time) *Buffer {
	buf := NewBuffer(width, height)
	if height == 0 {
		return buf
	}

	reserved := 0
	if statusLine != "" {
		reserved++
	}
	if inputLine != "" {
		reserved++
	}
	bodyHeight := height - reserved
	if bodyHeight < 0 {
		bodyHeight = 0
	}

	var bodyLines []string
	if wu != nil {
		var wrapped []string
		for _, l := range wu.Render(now) {
			wrapped = append(wrapped, WrapLines(l, width)...)
		}
		bodyLines = BottomAlign(wrapped, bodyHeight)
	}

	row := 0
	for ; row < len(bodyLines) && row < bodyHeight; row++ {
		buf.WriteRow(row, bodyLines[row], defaultStyle)
	}
	row = bodyHeight
	if statusLine != "" && row < height {
		buf.WriteRow(row, statusLine, defaultStyle)
		row++
	}
	if inputLine != "" && row < height {
		buf.WriteRow(row, inputLine, defaultStyle)
	}
	return buf
}

// DefaultTickInterval is the period between diff-blit ticks at
// DefaultFrameRate.
func DefaultTickInterval() time.Duration {
	return time.Second / time.Duration(DefaultFrameRate)
}
