package executor

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/concurrent"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/logger"
)

// Config sizes the parallel query path.
type Config struct {
	Workers     int
	BucketCount int
}

// Match is the result of matching a query against one document.
type Match struct {
	Terms  []string       `json:"terms"`
	Status indexer.Status `json:"status"`
}

type Executor struct {
	engine      *indexer.Engine
	workers     int
	bucketCount int
	logger      *slog.Logger
}

func New(engine *indexer.Engine, cfg Config) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.BucketCount <= 0 {
		cfg.BucketCount = concurrent.DefaultBucketCount
	}
	return &Executor{
		engine:      engine,
		workers:     cfg.Workers,
		bucketCount: cfg.BucketCount,
		logger:      slog.Default().With("component", "query-executor"),
	}
}

// FindTopDocuments parses raw and returns at most ranker.MaxResultDocumentCount
// documents, best first. Without options only active documents are ranked,
// sequentially.
func (e *Executor) FindTopDocuments(raw string, opts ...Option) ([]ranker.Document, error) {
	query, err := parser.Parse(raw, e.engine.StopWords())
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	defer logger.Duration(e.logger, "find_top_documents")()

	found := e.FindAllDocuments(o.policy, query, o.predicate)
	total := len(found)
	result := ranker.Rank(found, ranker.MaxResultDocumentCount)

	e.logger.Debug("query executed",
		"query", query.Key(),
		"policy", o.policy.String(),
		"candidates", total,
		"results", len(result),
	)
	return result, nil
}

// FindAllDocuments scores every document matching query and pred, in
// ascending id order. Documents holding any minus term are excluded whatever
// pred says.
func (e *Executor) FindAllDocuments(policy indexer.Policy, query *parser.Query, pred Predicate) []ranker.Document {
	if pred == nil {
		pred = StatusFilter(indexer.StatusActive)
	}
	var docs []ranker.Document
	e.engine.View(func(v indexer.View) {
		var scores map[int]float64
		if policy == indexer.Parallel {
			scores = e.scoreParallel(v, query, pred)
		} else {
			scores = scoreSequential(v, query, pred)
		}
		docs = ranker.FromScores(scores, func(id int) int {
			meta, _ := v.Document(id)
			return meta.Rating
		})
	})
	return docs
}

func scoreSequential(v indexer.View, query *parser.Query, pred Predicate) map[int]float64 {
	total := v.DocumentCount()
	scores := make(map[int]float64)
	for _, term := range query.Plus {
		postings := v.Postings(term)
		if len(postings) == 0 {
			continue
		}
		idf := ranker.IDF(total, len(postings))
		for id, tf := range postings {
			if matches(v, pred, id) {
				scores[id] += tf * idf
			}
		}
	}
	for _, term := range query.Minus {
		for id := range v.Postings(term) {
			delete(scores, id)
		}
	}
	return scores
}

func (e *Executor) scoreParallel(v indexer.View, query *parser.Query, pred Predicate) map[int]float64 {
	total := v.DocumentCount()
	acc := concurrent.NewMap[int, float64](e.bucketCount)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, term := range query.Plus {
		postings := v.Postings(term)
		if len(postings) == 0 {
			continue
		}
		g.Go(func() error {
			idf := ranker.IDF(total, len(postings))
			for id, tf := range postings {
				if matches(v, pred, id) {
					acc.Access(id, func(score *float64) { *score += tf * idf })
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var erase errgroup.Group
	erase.SetLimit(e.workers)
	for _, term := range query.Minus {
		postings := v.Postings(term)
		if len(postings) == 0 {
			continue
		}
		erase.Go(func() error {
			for id := range postings {
				acc.Erase(id)
			}
			return nil
		})
	}
	_ = erase.Wait()

	return acc.BuildOrdinaryMap()
}

func matches(v indexer.View, pred Predicate, id int) bool {
	meta, _ := v.Document(id)
	return pred.Match(id, meta.Status, meta.Rating)
}

// MatchDocument lists the plus terms of raw that document id contains, in
// lexicographic order, together with its status. A single minus term present
// in the document empties the list.
func (e *Executor) MatchDocument(policy indexer.Policy, raw string, id int) (Match, error) {
	query, err := parser.Parse(raw, e.engine.StopWords())
	if err != nil {
		return Match{}, err
	}
	var (
		match Match
		found bool
	)
	e.engine.View(func(v indexer.View) {
		meta, ok := v.Document(id)
		if !ok {
			return
		}
		found = true
		match.Status = meta.Status
		if policy == indexer.Parallel {
			match.Terms = e.matchParallel(v, query, id)
		} else {
			match.Terms = matchSequential(v, query, id)
		}
	})
	if !found {
		return Match{}, fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return match, nil
}

func matchSequential(v indexer.View, query *parser.Query, id int) []string {
	for _, term := range query.Minus {
		if v.Contains(term, id) {
			return []string{}
		}
	}
	terms := make([]string, 0, len(query.Plus))
	for _, term := range query.Plus {
		if v.Contains(term, id) {
			terms = append(terms, term)
		}
	}
	return terms
}

func (e *Executor) matchParallel(v indexer.View, query *parser.Query, id int) []string {
	var vetoed atomic.Bool
	var minus errgroup.Group
	minus.SetLimit(e.workers)
	for _, term := range query.Minus {
		minus.Go(func() error {
			if !vetoed.Load() && v.Contains(term, id) {
				vetoed.Store(true)
			}
			return nil
		})
	}
	_ = minus.Wait()
	if vetoed.Load() {
		return []string{}
	}

	hits := make([]bool, len(query.Plus))
	var plus errgroup.Group
	plus.SetLimit(e.workers)
	for i, term := range query.Plus {
		plus.Go(func() error {
			hits[i] = v.Contains(term, id)
			return nil
		})
	}
	_ = plus.Wait()

	terms := make([]string, 0, len(query.Plus))
	for i, hit := range hits {
		if hit {
			terms = append(terms, query.Plus[i])
		}
	}
	return terms
}
