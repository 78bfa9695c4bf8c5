// Package tokenizer splits document and query text into terms. Terms are
// separated by ASCII spaces only; there is no case folding and no stemming.
// Runs of spaces, leading spaces and trailing spaces never produce empty
// terms.
package tokenizer

import (
	"slices"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
)

// Split breaks text on ' ' and drops empty pieces.
func Split(text string) []string {
	words := make([]string, 0, strings.Count(text, " ")+1)
	for {
		text = strings.TrimLeft(text, " ")
		if text == "" {
			return words
		}
		end := strings.IndexByte(text, ' ')
		if end < 0 {
			return append(words, text)
		}
		words = append(words, text[:end])
		text = text[end:]
	}
}

// IsValidWord reports whether word is free of control characters
// (bytes 0x00 through 0x1F).
func IsValidWord(word string) bool {
	for i := 0; i < len(word); i++ {
		if word[i] < ' ' {
			return false
		}
	}
	return true
}

// StopWords is an immutable set of terms excluded from indexing and from
// query matching.
type StopWords struct {
	words map[string]struct{}
}

// NewStopWords builds a set from words, ignoring empty strings. Every
// remaining word must be valid.
func NewStopWords(words []string) (StopWords, error) {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if !IsValidWord(w) {
			return StopWords{}, apperrors.InvalidArgumentf("stop word %q contains control characters", w)
		}
		set[w] = struct{}{}
	}
	return StopWords{words: set}, nil
}

// ParseStopWords builds a set from space separated text.
func ParseStopWords(text string) (StopWords, error) {
	return NewStopWords(Split(text))
}

// Contains reports whether word is a stop word.
func (s StopWords) Contains(word string) bool {
	_, ok := s.words[word]
	return ok
}

func (s StopWords) Len() int {
	return len(s.words)
}

// Words returns the stop words in lexicographic order.
func (s StopWords) Words() []string {
	out := make([]string, 0, len(s.words))
	for w := range s.words {
		out = append(out, w)
	}
	slices.Sort(out)
	return out
}

// SplitNoStop tokenizes text, rejects invalid words and drops stop words.
// Validation runs over every token, stop words included.
func (s StopWords) SplitNoStop(text string) ([]string, error) {
	tokens := Split(text)
	words := tokens[:0]
	for _, token := range tokens {
		if !IsValidWord(token) {
			return nil, apperrors.InvalidArgumentf("word %q contains control characters", token)
		}
		if s.Contains(token) {
			continue
		}
		words = append(words, token)
	}
	return words, nil
}
