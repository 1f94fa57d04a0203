package tui

import (
	"bufio"
	"context"
	"io"

	"github.com/forgehq/forge/internal/debounce"
)

// MinTypingChars is the input-buffer length threshold spec.md §4.7
// requires before typing starts triggering the brain at all.
const MinTypingChars = 10

// Event is the tagged result of one input-loop iteration.
type Event struct {
	Submitted    bool
	TypingText   string // set when this is a debounced typing-started tick
	IsTyping     bool
	Text         string // submitted text, when Submitted
	Interrupted  bool
	EOF          bool
	DialogInput  rune // raw rune forwarded while a dialog owns the keyboard
	DialogKey    DialogKey
	IsDialogKey  bool
}

// DialogKey enumerates the non-printable keys a dialog needs to
// navigate its option list (arrow up/down, enter, escape) independent
// of the main LineEditor's left/right/home/end/delete vocabulary.
type DialogKey int

const (
	DialogKeyNone DialogKey = iota
	DialogKeyUp
	DialogKeyDown
	DialogKeyEnter
	DialogKeyEscape
)

// InputLoop reads keystrokes from r (expected to be a raw-mode
// terminal fd wrapped by the caller) and emits Events on out: a
// debounced TypingStarted once the buffer reaches MinTypingChars and
// then goes quiet for TypingDebounce, and a Submitted event on Enter.
// Dialog navigation keys pass through as DialogKey so a fronting Dialog
// can intercept them before they reach the LineEditor.
type InputLoop struct {
	reader     *bufio.Reader
	editor     LineEditor
	typing     *debounce.Debouncer[string]
	out        chan Event
	dialogMode bool
}

// SetDialogMode switches the loop between driving the main composition
// LineEditor (false) and forwarding raw runes/keys to a fronting Dialog
// (true) — while a dialog is open it owns the keyboard, per spec.md
// §4.8's "Dialogs... render over the viewport".
func (l *InputLoop) SetDialogMode(active bool) { l.dialogMode = active }

// NewInputLoop wraps r (stdin in raw mode on a real terminal, or any
// io.Reader in tests) and prepares the typing debouncer.
func NewInputLoop(r io.Reader) *InputLoop {
	l := &InputLoop{
		reader: bufio.NewReader(r),
		out:    make(chan Event, 16),
	}
	l.typing = debounce.NewDebouncer[string](
		debounce.WithDebounceMs[string](300),
		debounce.WithBuildKey[string](func(item *string) string { return "input" }),
		debounce.WithOnFlush[string](func(items []*string) error {
			if len(items) == 0 {
				return nil
			}
			latest := *items[len(items)-1]
			l.emit(Event{IsTyping: true, TypingText: latest})
			return nil
		}),
	)
	return l
}

// Events returns the channel Events are delivered on.
func (l *InputLoop) Events() <-chan Event { return l.out }

func (l *InputLoop) emit(e Event) {
	select {
	case l.out <- e:
	default:
		// Drop rather than block the read loop; a stalled consumer
		// should not wedge keystroke processing.
	}
}

// Run reads runes until ctx is cancelled or the reader returns EOF,
// updating the internal LineEditor and emitting Events as it goes.
// Intended to run on its own goroutine; Buffer() reflects the current
// composition line for rendering at any point from another goroutine
// only if the caller synchronizes externally (matching this package's
// single-consumer-loop convention elsewhere, e.g. interact.Manager).
func (l *InputLoop) Run(ctx context.Context) {
	defer l.typing.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		r, _, err := l.reader.ReadRune()
		if err != nil {
			if err == io.EOF {
				l.emit(Event{EOF: true})
			}
			return
		}
		l.handleRune(r)
	}
}

func (l *InputLoop) handleRune(r rune) {
	if l.dialogMode {
		switch r {
		case '\r', '\n':
			l.emit(Event{IsDialogKey: true, DialogKey: DialogKeyEnter})
		case 0x1b:
			l.handleEscape()
		default:
			l.emit(Event{IsDialogKey: true, DialogKey: DialogKeyNone, DialogInput: r})
		}
		return
	}

	switch r {
	case '\r', '\n':
		text := l.editor.String()
		l.editor.Reset()
		l.emit(Event{Submitted: true, Text: text})
		return
	case 0x03: // Ctrl-C
		l.emit(Event{Interrupted: true})
		return
	case 0x04: // Ctrl-D
		if l.editor.Len() == 0 {
			l.emit(Event{EOF: true})
			return
		}
	case 0x7f, 0x08: // Backspace
		l.editor.Backspace()
		l.afterEdit()
		return
	case 0x1b: // escape sequence lead byte (CSI arrow/home/end/delete)
		l.handleEscape()
		return
	}
	l.editor.Insert(r)
	l.afterEdit()
}

// handleEscape consumes a CSI sequence ("ESC [ ... final-byte")
// following a lead ESC byte already read from the stream, translating
// the common arrow/navigation codes into LineEditor movement or a
// DialogKey for a fronting dialog to consume. An ESC with no following
// '[' (e.g. a bare Escape keypress) surfaces as DialogKeyEscape.
func (l *InputLoop) handleEscape() {
	next, _, err := l.reader.ReadRune()
	if err != nil || next != '[' {
		l.emit(Event{IsDialogKey: true, DialogKey: DialogKeyEscape})
		return
	}
	var seq []rune
	for {
		r, _, err := l.reader.ReadRune()
		if err != nil {
			return
		}
		if r >= 0x40 && r <= 0x7e {
			seq = append(seq, r)
			break
		}
		seq = append(seq, r)
	}
	final := seq[len(seq)-1]
	switch final {
	case 'A': // Up
		l.emit(Event{IsDialogKey: true, DialogKey: DialogKeyUp})
	case 'B': // Down
		l.emit(Event{IsDialogKey: true, DialogKey: DialogKeyDown})
	case 'C': // Right
		l.editor.Right()
	case 'D': // Left
		l.editor.Left()
	case 'H': // Home
		l.editor.Home()
	case 'F': // End
		l.editor.End()
	case '~':
		switch string(seq[:len(seq)-1]) {
		case "1", "7":
			l.editor.Home()
		case "3":
			l.editor.Delete()
			l.afterEdit()
		case "4", "8":
			l.editor.End()
		}
	}
}

func (l *InputLoop) afterEdit() {
	if l.editor.Len() >= MinTypingChars {
		text := l.editor.String()
		l.typing.Enqueue(&text)
	}
}

// Buffer returns the current composition text and cursor position.
func (l *InputLoop) Buffer() (text string, cursor int) {
	return l.editor.String(), l.editor.Cursor()
}
