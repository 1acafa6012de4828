package outline

// LineIndex converts between absolute byte offsets and Positions for one
// snapshot of text. "\r\n" counts as a single line break.
type LineIndex struct {
	text  string
	lines []int // byte offset of the first byte of each line
}

// NewLineIndex builds the line table for text.
func NewLineIndex(text string) *LineIndex {
	lines := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &LineIndex{text: text, lines: lines}
}

// LineCount returns the number of lines, counting a trailing empty line.
func (x *LineIndex) LineCount() int { return len(x.lines) }

// lineEnd returns the offset just past the last content byte of line,
// excluding the line break.
func (x *LineIndex) lineEnd(line int) int {
	end := len(x.text)
	if line+1 < len(x.lines) {
		end = x.lines[line+1] - 1
	}
	if end > x.lines[line] && x.text[end-1] == '\r' {
		end--
	}
	return end
}

// Offset converts p to a byte offset. Positions past the end of a line clamp
// to the line end; lines past the end of the text clamp to len(text).
func (x *LineIndex) Offset(p Position) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= len(x.lines) {
		return len(x.text)
	}
	start := x.lines[p.Line]
	off := start + max(p.Column, 0)
	return min(off, x.lineEnd(p.Line))
}

// Position converts a byte offset to a Position, clamping to the text.
func (x *LineIndex) Position(off int) Position {
	off = max(0, min(off, len(x.text)))
	lo, hi := 0, len(x.lines)
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if x.lines[mid] <= off {
			lo = mid
		} else {
			hi = mid
		}
	}
	return Position{Line: lo, Column: off - x.lines[lo]}
}

// End returns the position just past the last byte of the text.
func (x *LineIndex) End() Position {
	return x.Position(len(x.text))
}

// Slice returns the text covered by r, with End exclusive.
func (x *LineIndex) Slice(r Range) string {
	start, end := x.Offset(r.Start), x.Offset(r.End)
	if end < start {
		return ""
	}
	return x.text[start:end]
}

// LineText returns line without its line break.
func (x *LineIndex) LineText(line int) string {
	if line < 0 || line >= len(x.lines) {
		return ""
	}
	return x.text[x.lines[line]:x.lineEnd(line)]
}
