// Package tui implements the dual-layer terminal renderer of spec.md
// §4.8: a permanent, user-scrollable scrollback written once per
// message via the terminal's insert-lines-above-cursor capability, and
// a fixed-height inline viewport kept in sync with a shadow buffer by
// diffing against the previous frame and rewriting only changed rows.
package tui

import "github.com/fatih/color"

// Style captures the subset of terminal text attributes the renderer
// tracks per cell. Cleared alongside the rune on every Buffer.Clear so
// a later, shorter message can never bleed an earlier message's color
// into cells it no longer writes (spec.md §4.8: "clear() resets both
// character AND style").
type Style struct {
	Attrs []color.Attribute
}

// Equal reports whether two styles render identically.
func (s Style) Equal(o Style) bool {
	if len(s.Attrs) != len(o.Attrs) {
		return false
	}
	for i, a := range s.Attrs {
		if o.Attrs[i] != a {
			return false
		}
	}
	return true
}

// Render returns text wrapped in the ANSI sequence for s, or text
// unchanged when s carries no attributes.
func (s Style) Render(text string) string {
	if len(s.Attrs) == 0 {
		return text
	}
	return color.New(s.Attrs...).Sprint(text)
}

var defaultStyle = Style{}

// Cell is one character position in the shadow buffer: a rune plus the
// style it was written with. The zero Cell is a blank space in the
// default style.
type Cell struct {
	Ch    rune
	Style Style
}

var blankCell = Cell{Ch: ' ', Style: defaultStyle}

// Buffer is a fixed-size 2-D grid of Cells, row-major, used as both the
// current frame being rendered and the previous frame diffed against.
type Buffer struct {
	Width  int
	Height int
	cells  []Cell
}

// NewBuffer allocates a blank w x h buffer.
func NewBuffer(w, h int) *Buffer {
	b := &Buffer{Width: w, Height: h, cells: make([]Cell, w*h)}
	b.Clear()
	return b
}

// Clear resets every cell to a blank space in the default style. Per
// spec.md §4.8, clearing must reset style along with the character —
// leaving a prior cell's Style in place while blanking only Ch causes
// color to bleed from an earlier message into the blank line that
// follows it.
func (b *Buffer) Clear() {
	for i := range b.cells {
		b.cells[i] = blankCell
	}
}

func (b *Buffer) index(row, col int) (int, bool) {
	if row < 0 || row >= b.Height || col < 0 || col >= b.Width {
		return 0, false
	}
	return row*b.Width + col, true
}

// Set writes a single cell, silently ignoring out-of-bounds positions
// (a wrapped line at the exact viewport width writes one cell past the
// last column's neighbor, which this makes a no-op rather than a panic).
func (b *Buffer) Set(row, col int, ch rune, style Style) {
	idx, ok := b.index(row, col)
	if !ok {
		return
	}
	b.cells[idx] = Cell{Ch: ch, Style: style}
}

// Get returns the cell at (row, col), or a blank cell if out of bounds.
func (b *Buffer) Get(row, col int) Cell {
	idx, ok := b.index(row, col)
	if !ok {
		return blankCell
	}
	return b.cells[idx]
}

// WriteRow writes text starting at (row, 0) in style, truncating to the
// buffer width. ANSI escape sequences embedded in text are treated as
// zero-width per spec.md §4.8 and are stripped before laying out cells,
// so a styled source string never desyncs column counting.
func (b *Buffer) WriteRow(row int, text string, style Style) {
	col := 0
	for _, r := range StripANSI(text) {
		if col >= b.Width {
			break
		}
		b.Set(row, col, r, style)
		col++
	}
}

// RowChanged reports whether row differs between b and other.
func (b *Buffer) RowChanged(other *Buffer, row int) bool {
	if other == nil || other.Width != b.Width || other.Height != b.Height {
		return true
	}
	start, _ := b.index(row, 0)
	end := start + b.Width
	for i := start; i < end; i++ {
		if b.cells[i] != other.cells[i] {
			return true
		}
	}
	return false
}

// RowText renders row as a plain string (no trailing padding trimmed),
// grouping consecutive cells that share a style into one styled span so
// the terminal write for a row is a handful of escape sequences rather
// than one per character.
func (b *Buffer) RowText(row int) string {
	var out []byte
	start, _ := b.index(row, 0)
	i := 0
	for i < b.Width {
		style := b.cells[start+i].Style
		j := i
		var run []rune
		for j < b.Width && b.cells[start+j].Style.Equal(style) {
			run = append(run, b.cells[start+j].Ch)
			j++
		}
		out = append(out, []byte(style.Render(string(run)))...)
		i = j
	}
	return string(out)
}
