package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
)

func stopWords(t *testing.T, text string) tokenizer.StopWords {
	t.Helper()
	sw, err := tokenizer.ParseStopWords(text)
	require.NoError(t, err)
	return sw
}

func TestParse(t *testing.T) {
	sw := stopWords(t, "and in on")
	tests := []struct {
		name  string
		raw   string
		plus  []string
		minus []string
	}{
		{"plus only", "fluffy cat", []string{"cat", "fluffy"}, nil},
		{"minus", "cat -collar", []string{"cat"}, []string{"collar"}},
		{"duplicates collapse", "cat cat -dog -dog", []string{"cat"}, []string{"dog"}},
		{"stop words dropped", "cat and -in dog", []string{"cat", "dog"}, nil},
		{"same term both signs", "cat -cat", []string{"cat"}, []string{"cat"}},
		{"trailing space", "cat ", []string{"cat"}, nil},
		{"empty", "", nil, nil},
		{"inner minus is literal", "e-mail", []string{"e-mail"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.raw, sw)
			require.NoError(t, err)
			assert.Equal(t, tt.plus, q.Plus)
			assert.Equal(t, tt.minus, q.Minus)
			assert.Equal(t, tt.raw, q.RawQuery)
		})
	}
}

func TestParseErrors(t *testing.T) {
	sw := stopWords(t, "")
	for _, raw := range []string{"cat -", "--cat", "cat ---dog", "ca\x11t", "-do\x01g"} {
		t.Run(raw, func(t *testing.T) {
			q, err := Parse(raw, sw)
			assert.Nil(t, q)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
		})
	}
}

func TestQueryKeyIsOrderIndependent(t *testing.T) {
	sw := stopWords(t, "the")
	a, err := Parse("dog cat -rat the", sw)
	require.NoError(t, err)
	b, err := Parse("cat  -rat dog dog", sw)
	require.NoError(t, err)
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "cat dog NOT rat", a.Key())
	assert.False(t, a.Empty())

	empty, err := Parse("the -cat", sw)
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}

func BenchmarkParse(b *testing.B) {
	sw, _ := tokenizer.ParseStopWords("and with the")
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "distributed systems"},
		{"with_minus", "distributed -monolithic -legacy"},
		{"long", "distributed search analytics platform indexing query processing ranking caching sharding"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_, _ = Parse(q.query, sw)
			}
		})
	}
}
