package tui

import "strings"

// StripANSI removes CSI escape sequences (the `ESC [ ... letter` form
// used for color and cursor control) from s. Per spec.md §4.8, ANSI
// codes in rendered source text are treated as zero-width so they never
// throw off column/width accounting during layout.
func StripANSI(s string) string {
	if !strings.ContainsRune(s, 0x1b) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] != 0x1b {
			b.WriteRune(runes[i])
			continue
		}
		if i+1 < len(runes) && runes[i+1] == '[' {
			i += 2
			for i < len(runes) && !isCSIFinal(runes[i]) {
				i++
			}
			continue // final byte consumed by loop increment
		}
		// Lone ESC with no CSI body; drop it.
	}
	return b.String()
}

func isCSIFinal(r rune) bool {
	return r >= 0x40 && r <= 0x7e
}

// DisplayWidth returns the number of terminal columns s occupies once
// ANSI escapes are stripped. Wide (e.g. CJK) runes are not
// double-counted here; the renderer treats every rune as one column,
// matching the fixed-width assumption the rest of this package makes.
func DisplayWidth(s string) int {
	return len([]rune(StripANSI(s)))
}
