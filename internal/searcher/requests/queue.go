// Package requests tracks how many of the most recent queries returned no
// documents.
package requests

import (
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/metrics"
)

// DefaultWindow is one query per minute over a day.
const DefaultWindow = 1440

// Queue runs queries through a Searcher and keeps the outcome of the last
// window of them in a ring buffer.
type Queue struct {
	searcher executor.Searcher
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	empty    []bool
	head     int
	size     int
	noResult int
}

type Option func(*Queue)

// WithWindow sets the number of queries remembered. Non-positive values keep
// DefaultWindow.
func WithWindow(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.empty = make([]bool, n)
		}
	}
}

// WithMetrics mirrors the window into the no-result and window-size gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

func NewQueue(s executor.Searcher, opts ...Option) *Queue {
	q := &Queue{
		searcher: s,
		empty:    make([]bool, DefaultWindow),
		logger:   slog.Default().With("component", "request-queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddFindRequest runs raw and records whether it found anything. Queries that
// fail to parse are returned to the caller and not recorded.
func (q *Queue) AddFindRequest(raw string, opts ...executor.Option) ([]ranker.Document, error) {
	docs, err := q.searcher.FindTopDocuments(raw, opts...)
	if err != nil {
		return nil, err
	}
	q.Record(len(docs) == 0)
	return docs, nil
}

// Record notes the outcome of a query answered without AddFindRequest, such
// as one served from a cache.
func (q *Queue) Record(empty bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == len(q.empty) {
		if q.empty[q.head] {
			q.noResult--
		}
		q.empty[q.head] = empty
		q.head = (q.head + 1) % len(q.empty)
	} else {
		q.empty[(q.head+q.size)%len(q.empty)] = empty
		q.size++
	}
	if empty {
		q.noResult++
		q.logger.Debug("query returned no documents", "no_result_requests", q.noResult)
	}

	if q.metrics != nil {
		q.metrics.NoResultRequests.Set(float64(q.noResult))
		q.metrics.RequestWindowSize.Set(float64(q.size))
	}
}

// NoResultRequests is the number of empty results among the remembered
// queries.
func (q *Queue) NoResultRequests() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.noResult
}

// Len is the number of remembered queries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Window is the ring buffer capacity.
func (q *Queue) Window() int {
	return len(q.empty)
}
