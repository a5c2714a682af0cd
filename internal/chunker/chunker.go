// Package chunker splits article text into overlapping windows that prefer
// natural boundaries.
package chunker

import (
	"strings"
	"unicode"
)

const (
	DefaultSize    = 1500
	DefaultOverlap = 200
)

// Span is one chunk of the input. Start and End are rune offsets, so
// []rune(text)[Start:End] == Text.
type Span struct {
	Text  string
	Start int
	End   int
}

type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter clamps overlap below size and falls back to the defaults for
// non-positive values.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return Splitter{Size: size, Overlap: overlap}
}

var separators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// Split returns spans of at most Size runes. Each span after the first
// starts about Overlap runes before the end of the previous one.
func (s Splitter) Split(text string) []Span {
	s = NewSplitter(s.Size, s.Overlap)

	runes := []rune(text)
	n := len(runes)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if n <= s.Size {
		return []Span{{Text: text, Start: 0, End: n}}
	}

	var spans []Span
	start := 0
	for start < n {
		end := start + s.Size
		if end >= n {
			end = n
		} else {
			end = s.cut(runes, start, end)
		}
		spans = append(spans, Span{Text: string(runes[start:end]), Start: start, End: end})
		if end == n {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = wordStart(runes, next, end)
	}
	return spans
}

// cut finds the best end offset in (start, limit]. Boundaries in the first
// half of the window are ignored so chunks do not shrink to nothing.
func (s Splitter) cut(runes []rune, start, limit int) int {
	floor := start + max(s.Size/2, s.Overlap+1)
	window := string(runes[start:limit])

	for _, sep := range separators {
		i := strings.LastIndex(window, sep)
		if i < 0 {
			continue
		}
		end := start + len([]rune(window[:i])) + len([]rune(sep))
		if end > floor && end <= limit {
			return end
		}
	}
	return limit
}

// wordStart moves pos forward to the first rune that begins a word before
// limit. Text without whitespace keeps pos as is.
func wordStart(runes []rune, pos, limit int) int {
	orig := pos
	if pos > 0 && !unicode.IsSpace(runes[pos-1]) {
		for pos < limit && !unicode.IsSpace(runes[pos]) {
			pos++
		}
	}
	for pos < limit && unicode.IsSpace(runes[pos]) {
		pos++
	}
	if pos >= limit {
		return orig
	}
	return pos
}
