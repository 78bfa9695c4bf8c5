package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/requests"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-server/pkg/redis"
)

type recorder struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recorder) Track(e analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []analytics.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]analytics.Event(nil), r.events...)
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

type fixture struct {
	mux    *http.ServeMux
	engine *indexer.Engine
	queue  *requests.Queue
	events *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	sw, err := tokenizer.ParseStopWords("and in on")
	require.NoError(t, err)
	engine := indexer.NewEngine(sw)
	for _, d := range []struct {
		id      int
		text    string
		status  indexer.Status
		ratings []int
	}{
		{0, "white cat and fashionable collar", indexer.StatusActive, []int{8, -3}},
		{1, "fluffy cat fluffy tail", indexer.StatusActive, []int{7, 2, 7}},
		{2, "groomed dog expressive eyes", indexer.StatusActive, []int{5, -12, 2, 1}},
		{3, "groomed starling evgeny", indexer.StatusBanned, []int{9}},
	} {
		require.NoError(t, engine.AddDocument(d.id, d.text, d.status, d.ratings))
	}
	exec := executor.New(engine, executor.Config{Workers: 2})
	queue := requests.NewQueue(exec)
	events := &recorder{}
	h := New(engine, exec, queue, append([]Option{WithCollector(events)}, opts...)...)
	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{mux: mux, engine: engine, queue: queue, events: events}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func resultIDs(resp SearchResponse) []int {
	out := make([]int, len(resp.Results))
	for i, d := range resp.Results {
		out[i] = d.ID
	}
	return out
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	for _, policy := range []string{"sequential", "parallel"} {
		rec := f.do(t, http.MethodGet, "/api/v1/search?q=fluffy+groomed+cat&policy="+policy, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[SearchResponse](t, rec)
		assert.Equal(t, []int{1, 0, 2}, resultIDs(resp), policy)
		assert.Equal(t, []string{"cat", "fluffy", "groomed"}, resp.Plus)
		assert.Equal(t, []string{}, resp.Minus)
		assert.Equal(t, policy, resp.Policy)
		assert.False(t, resp.CacheHit)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/search?q=groomed&status=banned", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{3}, resultIDs(decode[SearchResponse](t, rec)))
}

func TestSearchRecordsQueueAndEvents(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/search?q=cat", "")
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=unicorn", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, mustField(t, rec, "results"))

	assert.Equal(t, 2, f.queue.Len())
	assert.Equal(t, 1, f.queue.NoResultRequests())

	events := f.events.all()
	require.Len(t, events, 2)
	search, ok := events[1].(analytics.SearchEvent)
	require.True(t, ok)
	assert.Equal(t, "unicorn", search.Query)
	assert.Zero(t, search.Returned)
}

func TestSearchBadRequests(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		target string
	}{
		{"missing q", "/api/v1/search"},
		{"double minus", "/api/v1/search?q=--cat"},
		{"bare minus", "/api/v1/search?q=cat+-"},
		{"bad status", "/api/v1/search?q=cat&status=lost"},
		{"bad policy", "/api/v1/search?q=cat&policy=fast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Zero(t, f.queue.Len())
}

func TestSearchWithCache(t *testing.T) {
	qc := cache.New(&memStore{data: make(map[string]string)}, time.Minute, nil)
	f := newFixture(t, WithCache(qc))

	first := decode[SearchResponse](t, f.do(t, http.MethodGet, "/api/v1/search?q=unicorn", ""))
	assert.False(t, first.CacheHit)
	second := decode[SearchResponse](t, f.do(t, http.MethodGet, "/api/v1/search?q=unicorn", ""))
	assert.True(t, second.CacheHit)

	assert.Equal(t, 2, f.queue.Len())
	assert.Equal(t, 2, f.queue.NoResultRequests())

	rec := f.do(t, http.MethodPost, "/api/v1/documents", `{"id":10,"text":"unicorn horn"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	third := decode[SearchResponse](t, f.do(t, http.MethodGet, "/api/v1/search?q=unicorn", ""))
	assert.False(t, third.CacheHit)
	assert.Equal(t, []int{10}, resultIDs(third))
}

func TestAddAndRemoveDocument(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/documents", `{"id":7,"text":"small cat in hat","status":"active","ratings":[1,2,3]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, ingestion.IngestResponse{DocumentID: 7, Status: "active", Terms: 3}, decode[ingestion.IngestResponse](t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/documents", `{"id":7,"text":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/documents", `{"id":8,"text":"bad\u0001word"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/documents", `{"text":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/documents", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/documents/7/words", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var words struct {
		Words map[string]float64 `json:"words"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &words))
	assert.InDelta(t, 1.0/3, words.Words["cat"], 1e-9)

	rec = f.do(t, http.MethodDelete, "/api/v1/documents/7?policy=parallel", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 4, f.engine.DocumentCount())

	rec = f.do(t, http.MethodDelete, "/api/v1/documents/7", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/v1/documents/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/documents/7/words", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, mustField(t, rec, "words"))

	types := []analytics.EventType{}
	for _, e := range f.events.all() {
		if ie, ok := e.(analytics.IndexEvent); ok {
			types = append(types, ie.Type)
		}
	}
	assert.Equal(t, []analytics.EventType{
		analytics.EventIndexDocument,
		analytics.EventRemoveDocument,
		analytics.EventRemoveDocument,
	}, types)
}

func TestMatch(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/match?q=fluffy+cat+-collar&id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[MatchResponse](t, rec)
	assert.Equal(t, []string{"cat", "fluffy"}, resp.Terms)
	assert.Equal(t, indexer.StatusActive, resp.Status)

	rec = f.do(t, http.MethodGet, "/api/v1/match?q=fluffy+cat+-collar&id=0&policy=parallel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[MatchResponse](t, rec).Terms)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/match?q=cat&id=99", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/match?q=cat&id=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/match?q=--cat&id=1", "").Code)
}

func TestRemoveDuplicates(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.AddDocument(5, "tail fluffy cat", indexer.StatusActive, nil))
	require.NoError(t, f.engine.AddDocument(6, "collar cat white fashionable", indexer.StatusActive, nil))

	rec := f.do(t, http.MethodPost, "/api/v1/duplicates/remove", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":[5,6]}`, rec.Body.String())
	assert.Equal(t, 4, f.engine.DocumentCount())

	rec = f.do(t, http.MethodPost, "/api/v1/duplicates/remove", "")
	assert.JSONEq(t, `{"removed":[]}`, rec.Body.String())
}

func TestBatchSearch(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/search/batch", `{"queries":["fluffy cat","groomed","unicorn"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[BatchResponse](t, rec)
	require.Len(t, resp.Results, 3)
	assert.Len(t, resp.Results[0], 2)
	assert.Len(t, resp.Results[1], 1)
	assert.Empty(t, resp.Results[2])

	rec = f.do(t, http.MethodPost, "/api/v1/search/batch", `{"queries":["fluffy cat","groomed"],"joined":true,"page_size":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[BatchResponse](t, rec)
	require.Len(t, resp.Pages, 2)
	assert.Len(t, resp.Pages[0], 2)
	assert.Len(t, resp.Pages[1], 1)

	rec = f.do(t, http.MethodPost, "/api/v1/search/batch", `{"queries":["cat","--bad"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/search?q=unicorn", "")

	rec := f.do(t, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsResponse](t, rec)
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 1, stats.NoResultRequests)
	assert.Equal(t, 1, stats.WindowLength)
	assert.Equal(t, requests.DefaultWindow, stats.WindowSize)

	rec = f.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	assert.JSONEq(t, `{"status":"disabled"}`, rec.Body.String())
}

func TestTerms(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/index/terms?prefix=f", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"terms":[
		{"term":"fashionable","postings":[{"doc_id":0,"tf":0.25}]},
		{"term":"fluffy","postings":[{"doc_id":1,"tf":0.5}]}
	],"truncated":false}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/index/terms?prefix=f&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[TermsResponse](t, rec)
	require.Len(t, got.Terms, 1)
	assert.Equal(t, "fashionable", got.Terms[0].Term)
	assert.True(t, got.Truncated)

	rec = f.do(t, http.MethodGet, "/api/v1/index/terms?prefix=zebra", "")
	assert.JSONEq(t, `{"terms":[],"truncated":false}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/index/terms?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func mustField(t *testing.T, rec *httptest.ResponseRecorder, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	raw, ok := m[field]
	require.True(t, ok, "missing field %q", field)
	return string(raw)
}
