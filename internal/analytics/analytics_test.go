package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/kafka"
)

func TestDecode(t *testing.T) {
	search, err := json.Marshal(SearchEvent{Type: EventSearch, Query: "cat", Returned: 2})
	require.NoError(t, err)
	event, err := Decode(search)
	require.NoError(t, err)
	assert.Equal(t, "cat", event.(SearchEvent).Query)

	index, err := json.Marshal(IndexEvent{Type: EventDuplicatesRemoved, DocumentIDs: []int{3, 4}})
	require.NoError(t, err)
	event, err = Decode(index)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, event.(IndexEvent).DocumentIDs)

	_, err = Decode([]byte(`{"type":"unknown"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`nope`))
	assert.Error(t, err)
}

func TestAggregator(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	publish := func(e Event) {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		require.NoError(t, handle(context.Background(), nil, data))
	}

	publish(SearchEvent{Type: EventSearch, Query: "cat", Returned: 3, LatencyMs: 1, Policy: "parallel"})
	publish(SearchEvent{Type: EventSearch, Query: "cat", Returned: 3, LatencyMs: 3, CacheHit: true})
	publish(SearchEvent{Type: EventSearch, Query: "dog", Returned: 0, LatencyMs: 2})
	publish(IndexEvent{Type: EventIndexDocument, DocumentIDs: []int{1}})
	publish(IndexEvent{Type: EventIndexDocument, DocumentIDs: []int{2}})
	publish(IndexEvent{Type: EventDuplicatesRemoved, DocumentIDs: []int{2}})
	require.NoError(t, handle(context.Background(), []byte("k"), []byte("garbage")))

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.ParallelSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(2), stats.TotalDocsIndexed)
	assert.Equal(t, int64(1), stats.TotalDocsRemoved)
	assert.Equal(t, int64(1), stats.DuplicatesRemoved)
	assert.InDelta(t, 2.0, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, 2.0, stats.P50LatencyMs)
	assert.Equal(t, []QueryCount{{"cat", 2}, {"dog", 1}}, stats.TopQueries)
	assert.Equal(t, []QueryCount{{"dog", 1}}, stats.ZeroResultQueries)
}

func TestAggregatorBoundsLatencySamples(t *testing.T) {
	agg := NewAggregator()
	for i := range maxLatencySamples + 10 {
		agg.Record(SearchEvent{Type: EventSearch, Query: "q", Returned: 1, LatencyMs: float64(i)})
	}
	agg.mu.RLock()
	n := len(agg.latencies)
	agg.mu.RUnlock()
	assert.LessOrEqual(t, n, maxLatencySamples)
	assert.Equal(t, int64(maxLatencySamples+10), agg.Stats().TotalSearches)
}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *fakePublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestCollectorBatchesAndFlushesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 4, time.Hour, nil)
	c.Start(context.Background())
	for i := range 10 {
		c.Track(IndexEvent{Type: EventIndexDocument, DocumentIDs: []int{i}})
	}
	c.Close()

	assert.Equal(t, 10, pub.total())
	assert.Len(t, pub.batches[0], 4)
	assert.Equal(t, string(EventIndexDocument), pub.batches[0][0].Key)
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 1000, 10*time.Millisecond, nil)
	c.Start(context.Background())
	defer c.Close()
	c.Track(SearchEvent{Type: EventSearch, Query: "cat"})
	assert.Eventually(t, func() bool { return pub.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 1000, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	for range 3 {
		c.Track(SearchEvent{Type: EventSearch})
	}
	c.Start(ctx)
	cancel()
	<-c.done
	assert.Equal(t, 3, pub.total())
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 1, 1, time.Hour, nil)
	c.Track(SearchEvent{Type: EventSearch})
	c.Track(SearchEvent{Type: EventSearch})
	assert.Len(t, c.eventCh, 1)
}

type fakeLister struct {
	snapshots []AggregatedStats
	err       error
	limit     int
}

func (f *fakeLister) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snapshots, f.err
}

func TestHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Type: EventSearch, Query: "cat", Returned: 1})
	lister := &fakeLister{snapshots: []AggregatedStats{{TotalSearches: 9}}}
	h := NewHandler(agg, lister)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalSearches)

	rec = httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, lister.limit)
	var snaps []AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snaps))
	assert.Equal(t, int64(9), snaps[0].TotalSearches)

	rec = httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	lister.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	NewHandler(agg, nil).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
