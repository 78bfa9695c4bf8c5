package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"simple", "white cat and fancy collar", []string{"white", "cat", "and", "fancy", "collar"}},
		{"empty", "", []string{}},
		{"only spaces", "   ", []string{}},
		{"trailing space", "cat dog ", []string{"cat", "dog"}},
		{"leading and repeated", "  cat   dog", []string{"cat", "dog"}},
		{"tabs are not separators", "cat\tdog", []string{"cat\tdog"}},
		{"minus kept", "cat -dog", []string{"cat", "-dog"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.text))
		})
	}
}

func TestIsValidWord(t *testing.T) {
	assert.True(t, IsValidWord("cat"))
	assert.True(t, IsValidWord("кот"))
	assert.False(t, IsValidWord("ca\x12t"))
	assert.False(t, IsValidWord("\x00"))
}

func TestStopWords(t *testing.T) {
	sw, err := ParseStopWords("in the  and ")
	require.NoError(t, err)
	assert.Equal(t, 3, sw.Len())
	assert.True(t, sw.Contains("the"))
	assert.False(t, sw.Contains("cat"))
	assert.Equal(t, []string{"and", "in", "the"}, sw.Words())

	_, err = NewStopWords([]string{"ok", "bad\x01"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestSplitNoStop(t *testing.T) {
	sw, err := ParseStopWords("in the")
	require.NoError(t, err)

	words, err := sw.SplitNoStop("cat in the city")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "city"}, words)

	_, err = sw.SplitNoStop("cat in\x02 city")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	var zero StopWords
	words, err = zero.SplitNoStop("a b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, words)
}

func BenchmarkSplit(b *testing.B) {
	text := "distributed search engines process queries across multiple shards to achieve horizontal scalability"
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Split(text)
	}
}
