package executor

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/ranker"
)

// Searcher is the query side of an Executor.
type Searcher interface {
	FindTopDocuments(raw string, opts ...Option) ([]ranker.Document, error)
}

// ProcessQueries runs every query concurrently. results[i] belongs to
// queries[i]. The first failing query cancels the rest and is returned.
func ProcessQueries(ctx context.Context, s Searcher, queries []string, opts ...Option) ([][]ranker.Document, error) {
	results := make([][]ranker.Document, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, raw := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			docs, err := s.FindTopDocuments(raw, opts...)
			if err != nil {
				return fmt.Errorf("query %d %q: %w", i, raw, err)
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ProcessQueriesJoined is ProcessQueries flattened in query order.
func ProcessQueriesJoined(ctx context.Context, s Searcher, queries []string, opts ...Option) ([]ranker.Document, error) {
	perQuery, err := ProcessQueries(ctx, s, queries, opts...)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, docs := range perQuery {
		n += len(docs)
	}
	joined := make([]ranker.Document, 0, n)
	for _, docs := range perQuery {
		joined = append(joined, docs...)
	}
	return joined, nil
}

// Paginate splits items into consecutive pages of pageSize. A non-positive
// pageSize yields a single page.
func Paginate[T any](items []T, pageSize int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if pageSize <= 0 {
		pageSize = len(items)
	}
	pages := make([][]T, 0, (len(items)+pageSize-1)/pageSize)
	for start := 0; start < len(items); start += pageSize {
		end := min(start+pageSize, len(items))
		pages = append(pages, items[start:end:end])
	}
	return pages
}
