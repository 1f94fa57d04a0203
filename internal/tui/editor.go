package tui

// LineEditor is a single-line, Unicode-safe text buffer with cursor
// movement, shared by the main input line and a dialog's free-form
// "Other (custom input)" field (spec.md §4.8: "Cursor movement in
// custom input supports left/right/home/end/delete with Unicode-safe
// char-index calculations"). Indexing is always by rune, never by
// byte, so multi-byte characters move and delete as single units.
type LineEditor struct {
	runes  []rune
	cursor int // rune index, 0..len(runes)
}

// Insert inserts r at the cursor and advances it by one.
func (e *LineEditor) Insert(r rune) {
	e.runes = append(e.runes[:e.cursor], append([]rune{r}, e.runes[e.cursor:]...)...)
	e.cursor++
}

// Backspace deletes the rune before the cursor, if any.
func (e *LineEditor) Backspace() {
	if e.cursor == 0 {
		return
	}
	e.runes = append(e.runes[:e.cursor-1], e.runes[e.cursor:]...)
	e.cursor--
}

// Delete removes the rune at the cursor (forward delete), if any.
func (e *LineEditor) Delete() {
	if e.cursor >= len(e.runes) {
		return
	}
	e.runes = append(e.runes[:e.cursor], e.runes[e.cursor+1:]...)
}

// Left moves the cursor one rune left, clamped at 0.
func (e *LineEditor) Left() {
	if e.cursor > 0 {
		e.cursor--
	}
}

// Right moves the cursor one rune right, clamped at len(runes).
func (e *LineEditor) Right() {
	if e.cursor < len(e.runes) {
		e.cursor++
	}
}

// Home moves the cursor to the start of the line.
func (e *LineEditor) Home() { e.cursor = 0 }

// End moves the cursor to the end of the line.
func (e *LineEditor) End() { e.cursor = len(e.runes) }

// String returns the current buffer contents.
func (e *LineEditor) String() string { return string(e.runes) }

// Len returns the buffer length in runes.
func (e *LineEditor) Len() int { return len(e.runes) }

// Cursor returns the current cursor position as a rune index.
func (e *LineEditor) Cursor() int { return e.cursor }

// Reset clears the buffer and resets the cursor to 0.
func (e *LineEditor) Reset() {
	e.runes = e.runes[:0]
	e.cursor = 0
}

// SetText replaces the buffer contents and moves the cursor to the end.
func (e *LineEditor) SetText(s string) {
	e.runes = []rune(s)
	e.cursor = len(e.runes)
}
