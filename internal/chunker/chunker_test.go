package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rebuild(spans []Span) string {
	var b strings.Builder
	end := 0
	for _, s := range spans {
		runes := []rune(s.Text)
		skip := max(end-s.Start, 0)
		b.WriteString(string(runes[skip:]))
		end = s.End
	}
	return b.String()
}

func longArticle() string {
	var paragraphs []string
	for i := 0; i < 12; i++ {
		paragraphs = append(paragraphs, strings.Repeat("Officials confirmed the evacuation order this morning. ", 5))
	}
	return strings.Join(paragraphs, "\n\n")
}

func TestSplitShortText(t *testing.T) {
	spans := NewSplitter(1500, 200).Split("A short piece.")
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Text: "A short piece.", Start: 0, End: 14}, spans[0])

	assert.Empty(t, NewSplitter(1500, 200).Split("   \n "))
}

func TestSplitLongTextRoundTrip(t *testing.T) {
	text := longArticle()
	require.Greater(t, utf8.RuneCountInString(text), 1500)

	s := NewSplitter(DefaultSize, DefaultOverlap)
	spans := s.Split(text)
	require.GreaterOrEqual(t, len(spans), 2)

	runes := []rune(text)
	for i, span := range spans {
		assert.LessOrEqual(t, utf8.RuneCountInString(span.Text), s.Size, "span %d", i)
		assert.Equal(t, string(runes[span.Start:span.End]), span.Text, "span %d", i)
		if i > 0 {
			prev := spans[i-1]
			assert.Less(t, span.Start, prev.End, "span %d should overlap", i)
			assert.Greater(t, span.Start, prev.Start)
		}
	}
	assert.Equal(t, text, rebuild(spans))
}

func TestSplitPrefersParagraphs(t *testing.T) {
	text := longArticle()
	spans := NewSplitter(DefaultSize, DefaultOverlap).Split(text)

	assert.True(t, strings.HasSuffix(spans[0].Text, "\n\n"), "first chunk should end at a paragraph")
}

func TestSplitDoesNotCutWordsWhenSpacesExist(t *testing.T) {
	text := strings.Repeat("abcdefghi ", 400)
	spans := NewSplitter(500, 50).Split(text)
	require.Greater(t, len(spans), 1)

	for i, span := range spans {
		if i < len(spans)-1 {
			assert.True(t, strings.HasSuffix(span.Text, " "), "span %d ends mid-word", i)
		}
		assert.True(t, strings.HasPrefix(span.Text, "a"), "span %d starts mid-word: %q", i, span.Text[:5])
	}
	assert.Equal(t, text, rebuild(spans))
}

func TestSplitHardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 1200)
	spans := NewSplitter(500, 100).Split(text)

	require.Len(t, spans, 3)
	assert.Equal(t, 500, spans[0].End)
	assert.Equal(t, 400, spans[1].Start)
	assert.Equal(t, text, rebuild(spans))
}

func TestSplitMultibyte(t *testing.T) {
	text := strings.Repeat("日本語のニュース記事です。", 200)
	spans := NewSplitter(300, 30).Split(text)

	for _, span := range spans {
		assert.LessOrEqual(t, utf8.RuneCountInString(span.Text), 300)
		assert.True(t, utf8.ValidString(span.Text))
	}
	assert.Equal(t, text, rebuild(spans))
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 100)
	assert.Equal(t, 25, s.Overlap)

	s = NewSplitter(0, -1)
	assert.Equal(t, Splitter{Size: DefaultSize, Overlap: DefaultOverlap}, s)
}
