package indexer

import (
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
)

// Meta is the stored metadata of one document.
type Meta struct {
	Rating int
	Status Status
	Text   string
}

// Engine is the document store: document metadata, the ordered id set and
// the two-way inverted index. Writers take the write lock for the whole
// mutation, so readers never observe a half-indexed document.
type Engine struct {
	mu        sync.RWMutex
	memIndex  *index.MemoryIndex
	documents map[int]Meta
	ids       *roaring64.Bitmap
	stopWords tokenizer.StopWords
	workers   int
	logger    *slog.Logger
}

type Option func(*Engine)

// WithWorkers bounds the goroutines used by parallel removal.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func NewEngine(stopWords tokenizer.StopWords, opts ...Option) *Engine {
	e := &Engine{
		memIndex:  index.NewMemoryIndex(),
		documents: make(map[int]Meta),
		ids:       roaring64.New(),
		stopWords: stopWords,
		workers:   runtime.GOMAXPROCS(0),
		logger:    slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddDocument validates and indexes a document. Nothing is stored when an
// error is returned.
func (e *Engine) AddDocument(id int, text string, status Status, ratings []int) error {
	if id < 0 {
		return apperrors.InvalidArgumentf("document id %d is negative", id)
	}
	words, err := e.stopWords.SplitNoStop(text)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.documents[id]; exists {
		return fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentExists)
	}
	e.documents[id] = Meta{
		Rating: averageRating(ratings),
		Status: status,
		Text:   text,
	}
	e.ids.Add(uint64(id))
	e.memIndex.AddDocument(id, words)

	e.logger.Debug("document indexed",
		"doc_id", id,
		"token_count", len(words),
		"status", status.String(),
	)
	return nil
}

// RemoveDocument purges id from the store. Absent ids are ignored.
func (e *Engine) RemoveDocument(id int) {
	e.remove(id, Sequential)
}

// RemoveDocumentParallel is RemoveDocument with per-term erasure spread over
// the engine's workers.
func (e *Engine) RemoveDocumentParallel(id int) {
	e.remove(id, Parallel)
}

// RemoveDocumentWith dispatches on policy.
func (e *Engine) RemoveDocumentWith(policy Policy, id int) {
	e.remove(id, policy)
}

func (e *Engine) remove(id int, policy Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.documents[id]; !exists {
		return
	}
	delete(e.documents, id)
	e.ids.Remove(uint64(id))
	if policy == Parallel {
		e.memIndex.RemoveDocumentParallel(id, e.workers)
	} else {
		e.memIndex.RemoveDocument(id)
	}
	e.logger.Debug("document removed", "doc_id", id, "policy", policy.String())
}

// WordFrequencies returns a fresh term -> tf map; empty when id is unknown.
func (e *Engine) WordFrequencies(id int) map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.memIndex.WordFrequencies(id)
}

func (e *Engine) DocumentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.documents)
}

// IDs yields document ids in ascending order. The ids are captured when
// iteration starts, so the loop body may add or remove documents.
func (e *Engine) IDs() iter.Seq[int] {
	return func(yield func(int) bool) {
		e.mu.RLock()
		ids := e.ids.ToArray()
		e.mu.RUnlock()
		for _, id := range ids {
			if !yield(int(id)) {
				return
			}
		}
	}
}

// Document returns the metadata of id.
func (e *Engine) Document(id int) (Meta, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	meta, ok := e.documents[id]
	return meta, ok
}

func (e *Engine) StopWords() tokenizer.StopWords {
	return e.stopWords
}

// Terms is the number of distinct indexed terms.
func (e *Engine) Terms() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.memIndex.Terms()
}

// Snapshot lists the whole term -> postings index.
func (e *Engine) Snapshot() []index.TermEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.memIndex.Snapshot()
}

// View runs fn with the read lock held. The View must not be retained after
// fn returns, and fn must not call back into Engine methods that lock.
func (e *Engine) View(fn func(v View)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(View{e: e})
}

// View is lock-free read access to an Engine, valid inside Engine.View.
type View struct {
	e *Engine
}

func (v View) DocumentCount() int {
	return len(v.e.documents)
}

// Postings returns the live doc -> tf map of term. Read only.
func (v View) Postings(term string) map[int]float64 {
	return v.e.memIndex.Postings(term)
}

func (v View) DocFreq(term string) int {
	return v.e.memIndex.DocFreq(term)
}

func (v View) Contains(term string, id int) bool {
	return v.e.memIndex.Contains(term, id)
}

func (v View) Document(id int) (Meta, bool) {
	meta, ok := v.e.documents[id]
	return meta, ok
}

// averageRating is the mean truncated toward zero; 0 for no ratings.
func averageRating(ratings []int) int {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return sum / len(ratings)
}
