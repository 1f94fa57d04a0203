package tui

import "strings"

// WrapLines splits text on existing newlines and then hard-wraps each
// resulting line at width columns (ANSI-stripped width), matching
// spec.md §4.8's "long lines wrapped at terminal width" rule. width<=0
// disables wrapping (used in tests against unbounded buffers).
func WrapLines(text string, width int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if width <= 0 {
			out = append(out, line)
			continue
		}
		runes := []rune(StripANSI(line))
		if len(runes) == 0 {
			out = append(out, "")
			continue
		}
		for len(runes) > width {
			out = append(out, string(runes[:width]))
			runes = runes[width:]
		}
		out = append(out, string(runes))
	}
	return out
}

// BottomAlign selects the trailing slice of lines that fits within
// height rows, walking back to front and accumulating row counts per
// spec.md §4.8: it stops as soon as the next (earlier) line would push
// the total past height, and never includes a partial line — there is
// no special case that forces the very last line to appear when the
// viewport is too short for it, because an oversized message remains
// fully readable in scrollback instead.
func BottomAlign(lines []string, height int) []string {
	if height <= 0 || len(lines) == 0 {
		return nil
	}
	start := len(lines)
	count := 0
	for start > 0 {
		if count+1 > height {
			break
		}
		start--
		count++
	}
	return lines[start:]
}
