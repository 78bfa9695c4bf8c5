package requests

import (
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/metrics"
)

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	sw, err := tokenizer.ParseStopWords("and in on")
	require.NoError(t, err)
	engine := indexer.NewEngine(sw)
	require.NoError(t, engine.AddDocument(1, "curly dog with a collar", indexer.StatusActive, []int{1, 2, 3}))
	require.NoError(t, engine.AddDocument(2, "curly cat and curly tail", indexer.StatusActive, []int{7}))
	return NewQueue(executor.New(engine, executor.Config{}), opts...)
}

func TestNoResultRequestsWithinWindow(t *testing.T) {
	q := newTestQueue(t)
	for range 1439 {
		_, err := q.AddFindRequest("empty request")
		require.NoError(t, err)
	}
	docs, err := q.AddFindRequest("curly dog")
	require.NoError(t, err)
	assert.NotEmpty(t, docs)
	assert.Equal(t, 1439, q.NoResultRequests())
	assert.Equal(t, 1440, q.Len())

	_, err = q.AddFindRequest("big collar")
	require.NoError(t, err)
	_, err = q.AddFindRequest("sparrow")
	require.NoError(t, err)
	// Two empty entries were evicted, one non-empty and one empty added.
	assert.Equal(t, 1438, q.NoResultRequests())
	assert.Equal(t, 1440, q.Len())
}

func TestWindowEvictsOldest(t *testing.T) {
	q := newTestQueue(t, WithWindow(3))
	outcomes := []struct {
		raw       string
		noResults int
	}{
		{"nothing", 1},
		{"curly", 1},
		{"nothing", 2},
		{"nothing", 2}, // evicts the first empty entry
		{"curly", 2},   // evicts the non-empty entry
		{"curly", 1},
		{"curly", 0},
	}
	for i, o := range outcomes {
		_, err := q.AddFindRequest(o.raw)
		require.NoError(t, err)
		assert.Equal(t, o.noResults, q.NoResultRequests(), "after request %d", i)
	}
	assert.Equal(t, 3, q.Window())
}

func TestFailedQueryNotRecorded(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.AddFindRequest("curly --dog")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.Equal(t, 0, q.Len())
}

func TestOptionsForwarded(t *testing.T) {
	q := newTestQueue(t)
	docs, err := q.AddFindRequest("curly", executor.WithStatus(indexer.StatusBanned))
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 1, q.NoResultRequests())
}

func TestConcurrentRequests(t *testing.T) {
	q := newTestQueue(t, WithWindow(100))
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				raw := "curly"
				if (w+i)%2 == 0 {
					raw = fmt.Sprintf("missing%d", i)
				}
				_, _ = q.AddFindRequest(raw, executor.WithPolicy(indexer.Parallel))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, q.Len())
	n := q.NoResultRequests()
	assert.GreaterOrEqual(t, n, 0)
	assert.LessOrEqual(t, n, 100)
}

func TestMetricsMirrorWindow(t *testing.T) {
	reg := prometheus.NewRegistry()
	q := newTestQueue(t, WithWindow(2), WithMetrics(metrics.New(reg)))
	for _, raw := range []string{"x", "y", "curly"} {
		_, err := q.AddFindRequest(raw)
		require.NoError(t, err)
	}
	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "search_no_result_requests 1")
	assert.Contains(t, string(body), "search_request_window_size 2")
}
