package parser

import (
	"maps"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
)

// Query is a parsed query. Both term lists are deduplicated and sorted.
type Query struct {
	Plus     []string
	Minus    []string
	RawQuery string
}

// Empty reports whether the query has no plus terms; such a query matches
// nothing.
func (q *Query) Empty() bool {
	return len(q.Plus) == 0
}

// Key is a canonical form of the query: equal keys mean equal term sets.
func (q *Query) Key() string {
	var b strings.Builder
	b.WriteString(strings.Join(q.Plus, " "))
	if len(q.Minus) > 0 {
		b.WriteString(" NOT ")
		b.WriteString(strings.Join(q.Minus, " "))
	}
	return b.String()
}

// Parse splits raw into plus and minus terms. Stop words are dropped with or
// without a leading "-". An empty word, a bare "-", a word starting with
// "--" or a word containing a control character is an error.
func Parse(raw string, stopWords tokenizer.StopWords) (*Query, error) {
	plus := make(map[string]struct{})
	minus := make(map[string]struct{})
	for _, word := range tokenizer.Split(raw) {
		term, isMinus, err := parseWord(word)
		if err != nil {
			return nil, err
		}
		if stopWords.Contains(term) {
			continue
		}
		if isMinus {
			minus[term] = struct{}{}
		} else {
			plus[term] = struct{}{}
		}
	}
	return &Query{
		Plus:     slices.Sorted(maps.Keys(plus)),
		Minus:    slices.Sorted(maps.Keys(minus)),
		RawQuery: raw,
	}, nil
}

func parseWord(word string) (string, bool, error) {
	if word == "" {
		return "", false, apperrors.InvalidArgumentf("query word is empty")
	}
	isMinus := false
	if word[0] == '-' {
		isMinus = true
		word = word[1:]
	}
	if word == "" {
		return "", false, apperrors.InvalidArgumentf("query word %q has no term after the minus", "-")
	}
	if word[0] == '-' {
		return "", false, apperrors.InvalidArgumentf("query word %q has a double minus", "-"+word)
	}
	if !tokenizer.IsValidWord(word) {
		return "", false, apperrors.InvalidArgumentf("query word %q contains control characters", word)
	}
	return word, isMinus, nil
}
