package chunk

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reconstruct re-inserts the whitespace rune consumed after every chunk
// that was cut at whitespace. A hard cut is never followed by whitespace.
func reconstruct(t *testing.T, original string, chunks []string) string {
	t.Helper()
	runes := []rune(original)
	var sb strings.Builder
	pos := 0
	for _, c := range chunks {
		sb.WriteString(c)
		pos += utf8.RuneCountInString(c)
		if pos < len(runes) && unicode.IsSpace(runes[pos]) {
			sb.WriteRune(runes[pos])
			pos++
		}
	}
	return sb.String()
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	tests := []string{"", "Buy milk and eggs", "exactly10!"}
	for _, text := range tests {
		chunks, err := Split(text, 10+len(text))
		require.NoError(t, err)
		assert.Equal(t, []string{text}, chunks)
	}

	chunks, err := Split("exactly10!", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"exactly10!"}, chunks)
}

func TestSplit_EmptyTextYieldsOneEmptyChunk(t *testing.T) {
	chunks, err := Split("", 5)

	require.NoError(t, err)
	assert.Equal(t, []string{""}, chunks)
}

func TestSplit_InvalidMaxChars(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := Split("text", n)
		assert.ErrorIs(t, err, ErrInvalidMaxChars)
	}
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidMaxChars)
}

func TestSplit_CutsAtWhitespace(t *testing.T) {
	chunks, err := Split("Quarterly budget review meeting", 12)

	require.NoError(t, err)
	assert.Equal(t, []string{"Quarterly", "budget", "review", "meeting"}, chunks)
}

func TestSplit_BoundsAndReconstruction(t *testing.T) {
	texts := []string{
		"The quick brown fox jumps over the lazy dog and keeps running far away",
		"line one\nline two\nline three\n\nparagraph two has words in it",
		"  leading spaces and trailing spaces   ",
		"mixed aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa words bbbbbbbbbbbbbbbbbbbbbbbbbbbbb end",
		"unicode café naïve résumé über straße 東京 タワー emoji 🙂 text",
	}

	for _, text := range texts {
		for _, max := range []int{1, 3, 7, 10, 16} {
			chunks, err := Split(text, max)
			require.NoError(t, err)

			for _, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c), max, "chunk %q", c)
			}
			assert.Equal(t, text, reconstruct(t, text, chunks), "max=%d", max)
		}
	}
}

func TestSplit_NoWhitespaceTerminates(t *testing.T) {
	text := strings.Repeat("x", 1003)

	chunks, err := Split(text, 100)

	require.NoError(t, err)
	require.Len(t, chunks, 11)
	assert.Equal(t, 3, len(chunks[10]))
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplit_StepsAreBoundedByWindowCount(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	max := 50

	chunks, err := Split(text, max)

	require.NoError(t, err)
	// Each cut loses at most one partial word, so windows stay close to full.
	assert.LessOrEqual(t, len(chunks), 2*len(text)/max+1)
}

func TestChunker_DropsBlankWindows(t *testing.T) {
	c, err := New(5)
	require.NoError(t, err)

	assert.Empty(t, c.Chunks(""))
	assert.Empty(t, c.Chunks("   \n\t  "))
	assert.Equal(t, []string{"Buy", "milk", "and", "eggs"}, c.Chunks("Buy milk and eggs"))
}
