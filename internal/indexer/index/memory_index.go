package index

import (
	"maps"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// MemoryIndex keeps the inverted index (term -> doc -> tf) and its transpose
// (doc -> term -> tf) in step. It does no locking of its own; the owning
// indexer.Engine serialises writers against readers.
type MemoryIndex struct {
	wordToDocFreqs map[string]map[int]float64
	docToWordFreqs map[int]map[string]float64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		wordToDocFreqs: make(map[string]map[int]float64),
		docToWordFreqs: make(map[int]map[string]float64),
	}
}

// AddDocument indexes words for docID. Each occurrence contributes
// 1/len(words) to the document's frequency for that word.
func (m *MemoryIndex) AddDocument(docID int, words []string) {
	if len(words) == 0 {
		return
	}
	inv := 1.0 / float64(len(words))
	termData := make(map[string]float64, len(words))
	for _, word := range words {
		termData[word] += inv
	}
	for term, tf := range termData {
		docs, exists := m.wordToDocFreqs[term]
		if !exists {
			docs = make(map[int]float64)
			m.wordToDocFreqs[term] = docs
		}
		docs[docID] = tf
	}
	m.docToWordFreqs[docID] = termData
}

// RemoveDocument erases docID from every posting list it appears in. Only
// that document's postings are touched; a term whose list becomes empty is
// dropped.
func (m *MemoryIndex) RemoveDocument(docID int) {
	words, ok := m.docToWordFreqs[docID]
	if !ok {
		return
	}
	for term := range words {
		docs := m.wordToDocFreqs[term]
		delete(docs, docID)
		if len(docs) == 0 {
			delete(m.wordToDocFreqs, term)
		}
	}
	delete(m.docToWordFreqs, docID)
}

// RemoveDocumentParallel is RemoveDocument with the per-term erasure fanned
// out over at most workers goroutines. Each goroutine owns one term's
// posting map, so no two goroutines write the same map.
func (m *MemoryIndex) RemoveDocumentParallel(docID int, workers int) {
	words, ok := m.docToWordFreqs[docID]
	if !ok {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for term := range words {
		docs := m.wordToDocFreqs[term]
		g.Go(func() error {
			delete(docs, docID)
			return nil
		})
	}
	_ = g.Wait()
	for term := range words {
		if len(m.wordToDocFreqs[term]) == 0 {
			delete(m.wordToDocFreqs, term)
		}
	}
	delete(m.docToWordFreqs, docID)
}

// Postings returns the live doc -> tf map for term, or nil. Callers must not
// modify it.
func (m *MemoryIndex) Postings(term string) map[int]float64 {
	return m.wordToDocFreqs[term]
}

// DocFreq is the number of documents containing term.
func (m *MemoryIndex) DocFreq(term string) int {
	return len(m.wordToDocFreqs[term])
}

// Contains reports whether docID has a posting for term.
func (m *MemoryIndex) Contains(term string, docID int) bool {
	_, ok := m.wordToDocFreqs[term][docID]
	return ok
}

// WordFrequencies returns a copy of the term -> tf map of docID. Absent
// documents yield an empty map.
func (m *MemoryIndex) WordFrequencies(docID int) map[string]float64 {
	words, ok := m.docToWordFreqs[docID]
	if !ok {
		return make(map[string]float64)
	}
	return maps.Clone(words)
}

// Search returns the postings of term ordered by document id.
func (m *MemoryIndex) Search(term string) PostingList {
	docs, exists := m.wordToDocFreqs[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for id, tf := range docs {
		result = append(result, Posting{DocID: id, TermFreq: tf})
	}
	slices.SortFunc(result, func(a, b Posting) int {
		return a.DocID - b.DocID
	})
	return result
}

// Snapshot lists every term with its postings, terms in lexicographic order.
func (m *MemoryIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(m.wordToDocFreqs))
	for _, term := range slices.Sorted(maps.Keys(m.wordToDocFreqs)) {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: m.Search(term),
		})
	}
	return entries
}

// Terms is the number of distinct indexed terms.
func (m *MemoryIndex) Terms() int {
	return len(m.wordToDocFreqs)
}
