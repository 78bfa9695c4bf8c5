package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer/dedup"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/requests"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/tracing"
)

const (
	maxBatchQueries = 1000
	defaultTermList = 100
	maxTermList     = 1000
)

// Tracker receives analytics events.
type Tracker interface {
	Track(event analytics.Event)
}

type Handler struct {
	engine        *indexer.Engine
	executor      *executor.Executor
	queue         *requests.Queue
	cache         *cache.QueryCache
	collector     Tracker
	metrics       *metrics.Metrics
	defaultPolicy indexer.Policy
	tracing       bool
	logger        *slog.Logger
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithCollector(t Tracker) Option {
	return func(h *Handler) { h.collector = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithDefaultPolicy is used when a request does not name a policy.
func WithDefaultPolicy(p indexer.Policy) Option {
	return func(h *Handler) { h.defaultPolicy = p }
}

// WithTracing logs a span tree for every search.
func WithTracing(enabled bool) Option {
	return func(h *Handler) { h.tracing = enabled }
}

func New(engine *indexer.Engine, exec *executor.Executor, queue *requests.Queue, opts ...Option) *Handler {
	h := &Handler{
		engine:   engine,
		executor: exec,
		queue:    queue,
		logger:   slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.AddDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.RemoveDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/words", h.WordFrequencies)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search/batch", h.BatchSearch)
	mux.HandleFunc("GET /api/v1/match", h.Match)
	mux.HandleFunc("POST /api/v1/duplicates/remove", h.RemoveDuplicates)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("GET /api/v1/index/terms", h.Terms)
}

type SearchResponse struct {
	Query     string            `json:"query"`
	Plus      []string          `json:"plus"`
	Minus     []string          `json:"minus"`
	Status    string            `json:"status"`
	Policy    string            `json:"policy"`
	Results   []ranker.Document `json:"results"`
	CacheHit  bool              `json:"cache_hit"`
	LatencyMs float64           `json:"latency_ms"`
}

type MatchResponse struct {
	DocumentID int            `json:"document_id"`
	Terms      []string       `json:"terms"`
	Status     indexer.Status `json:"status"`
}

type BatchRequest struct {
	Queries  []string `json:"queries"`
	Status   string   `json:"status"`
	Policy   string   `json:"policy"`
	Joined   bool     `json:"joined"`
	PageSize int      `json:"page_size"`
}

type BatchResponse struct {
	Results [][]ranker.Document `json:"results,omitempty"`
	Pages   [][]ranker.Document `json:"pages,omitempty"`
}

type StatsResponse struct {
	Documents        int `json:"documents"`
	Terms            int `json:"terms"`
	NoResultRequests int `json:"no_result_requests"`
	WindowLength     int `json:"window_length"`
	WindowSize       int `json:"window_size"`
}

func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 2<<20)).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidArgumentf("decoding request body: %v", err))
		return
	}
	status, err := validator.ValidateIngestRequest(&req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.engine.AddDocument(*req.ID, req.Text, status, req.Ratings); err != nil {
		log.Warn("document rejected", "doc_id", *req.ID, "error", err)
		h.writeError(w, err)
		return
	}
	terms := len(h.engine.WordFrequencies(*req.ID))
	if h.metrics != nil {
		h.metrics.DocsIndexedTotal.Inc()
		h.metrics.DocumentCount.Set(float64(h.engine.DocumentCount()))
	}
	h.track(analytics.IndexEvent{
		Type:        analytics.EventIndexDocument,
		DocumentIDs: []int{*req.ID},
		TokenCount:  terms,
		Timestamp:   time.Now().UTC(),
		RequestID:   middleware.GetRequestID(r.Context()),
	})
	h.invalidate(r.Context())
	h.writeJSON(w, http.StatusCreated, ingestion.IngestResponse{
		DocumentID: *req.ID,
		Status:     status.String(),
		Terms:      terms,
	})
}

func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	policy, err := h.policy(r.URL.Query().Get("policy"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.engine.RemoveDocumentWith(policy, id)
	if h.metrics != nil {
		h.metrics.DocsRemovedTotal.WithLabelValues(policy.String()).Inc()
		h.metrics.DocumentCount.Set(float64(h.engine.DocumentCount()))
	}
	h.track(analytics.IndexEvent{
		Type:        analytics.EventRemoveDocument,
		DocumentIDs: []int{id},
		Policy:      policy.String(),
		Timestamp:   time.Now().UTC(),
		RequestID:   middleware.GetRequestID(r.Context()),
	})
	h.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) WordFrequencies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"document_id": id,
		"words":       h.engine.WordFrequencies(id),
	})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	params := r.URL.Query()
	if !params.Has("q") {
		h.writeError(w, apperrors.InvalidArgumentf("query parameter 'q' is required"))
		return
	}
	raw := params.Get("q")
	status := indexer.StatusActive
	if v := params.Get("status"); v != "" {
		s, err := indexer.ParseStatus(v)
		if err != nil {
			h.writeError(w, err)
			return
		}
		status = s
	}
	policy, err := h.policy(params.Get("policy"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var span *tracing.Span
	if h.tracing {
		ctx, span = tracing.StartSpan(ctx, "search", middleware.GetRequestID(ctx))
		span.SetAttr("policy", policy.String())
		defer func() {
			span.End()
			span.Log(log)
		}()
	}

	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	query, err := parser.Parse(raw, h.engine.StopWords())
	parseSpan.End()
	if err != nil {
		h.countSearch(policy, "error")
		h.writeError(w, err)
		return
	}

	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	opts := []executor.Option{executor.WithStatus(status), executor.WithPolicy(policy)}
	var (
		docs     []ranker.Document
		cacheHit bool
	)
	if h.cache != nil {
		computed := false
		key := cache.Key{Query: query.Key(), Status: status.String(), Policy: policy.String()}
		docs, cacheHit, err = h.cache.GetOrCompute(ctx, key, func() ([]ranker.Document, error) {
			computed = true
			return h.queue.AddFindRequest(raw, opts...)
		})
		if err == nil && !computed {
			h.queue.Record(len(docs) == 0)
		}
	} else {
		docs, err = h.queue.AddFindRequest(raw, opts...)
	}
	rankSpan.SetAttr("cache_hit", cacheHit)
	rankSpan.End()
	if err != nil {
		log.Error("search execution failed", "query", raw, "error", err)
		h.countSearch(policy, "error")
		h.writeError(w, err)
		return
	}
	if docs == nil {
		docs = []ranker.Document{}
	}

	elapsed := time.Since(start)
	latencyMs := float64(elapsed.Microseconds()) / 1000
	resultType := "hit"
	if len(docs) == 0 {
		resultType = "zero_result"
	}
	h.countSearch(policy, resultType)
	if h.metrics != nil {
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		h.metrics.SearchLatency.WithLabelValues(policy.String(), cacheStatus).Observe(elapsed.Seconds())
		h.metrics.SearchResultsCount.Observe(float64(len(docs)))
	}

	log.Info("search completed",
		"query", query.Key(),
		"policy", policy.String(),
		"returned", len(docs),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	h.track(analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     query.Key(),
		Plus:      query.Plus,
		Minus:     query.Minus,
		Status:    status.String(),
		Policy:    policy.String(),
		Returned:  len(docs),
		LatencyMs: latencyMs,
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})

	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:     raw,
		Plus:      emptyIfNil(query.Plus),
		Minus:     emptyIfNil(query.Minus),
		Status:    status.String(),
		Policy:    policy.String(),
		Results:   docs,
		CacheHit:  cacheHit,
		LatencyMs: latencyMs,
	})
}

// BatchSearch runs many queries at once, either per query or flattened into
// pages.
func (h *Handler) BatchSearch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 2<<20)).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidArgumentf("decoding request body: %v", err))
		return
	}
	if len(req.Queries) > maxBatchQueries {
		h.writeError(w, apperrors.InvalidArgumentf("at most %d queries per batch", maxBatchQueries))
		return
	}
	status := indexer.StatusActive
	if req.Status != "" {
		s, err := indexer.ParseStatus(req.Status)
		if err != nil {
			h.writeError(w, err)
			return
		}
		status = s
	}
	policy, err := h.policy(req.Policy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts := []executor.Option{executor.WithStatus(status), executor.WithPolicy(policy)}

	defer logger.Duration(logger.FromContext(r.Context()), "batch_search")()
	if req.Joined {
		joined, err := executor.ProcessQueriesJoined(r.Context(), h.executor, req.Queries, opts...)
		if err != nil {
			h.writeError(w, err)
			return
		}
		pages := executor.Paginate(joined, req.PageSize)
		if pages == nil {
			pages = [][]ranker.Document{}
		}
		h.writeJSON(w, http.StatusOK, BatchResponse{Pages: pages})
		return
	}
	results, err := executor.ProcessQueries(r.Context(), h.executor, req.Queries, opts...)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BatchResponse{Results: results})
}

func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	id, err := strconv.Atoi(params.Get("id"))
	if err != nil {
		h.writeError(w, apperrors.InvalidArgumentf("id must be an integer"))
		return
	}
	policy, err := h.policy(params.Get("policy"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	match, err := h.executor.MatchDocument(policy, params.Get("q"), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MatchResponse{
		DocumentID: id,
		Terms:      match.Terms,
		Status:     match.Status,
	})
}

func (h *Handler) RemoveDuplicates(w http.ResponseWriter, r *http.Request) {
	removed := dedup.RemoveDuplicates(h.engine)
	if removed == nil {
		removed = []int{}
	}
	if len(removed) > 0 {
		if h.metrics != nil {
			h.metrics.DuplicatesRemovedTotal.Add(float64(len(removed)))
			h.metrics.DocumentCount.Set(float64(h.engine.DocumentCount()))
		}
		h.track(analytics.IndexEvent{
			Type:        analytics.EventDuplicatesRemoved,
			DocumentIDs: removed,
			Timestamp:   time.Now().UTC(),
			RequestID:   middleware.GetRequestID(r.Context()),
		})
		h.invalidate(r.Context())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, StatsResponse{
		Documents:        h.engine.DocumentCount(),
		Terms:            h.engine.Terms(),
		NoResultRequests: h.queue.NoResultRequests(),
		WindowLength:     h.queue.Len(),
		WindowSize:       h.queue.Window(),
	})
}

// TermsResponse lists indexed terms in lexicographic order.
type TermsResponse struct {
	Terms     []index.TermEntry `json:"terms"`
	Truncated bool              `json:"truncated"`
}

// Terms dumps the inverted index, optionally restricted to terms starting
// with ?prefix and capped at ?limit entries.
func (h *Handler) Terms(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit := defaultTermList
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxTermList {
			h.writeError(w, apperrors.InvalidArgumentf("limit must be between 1 and %d", maxTermList))
			return
		}
		limit = n
	}
	prefix := params.Get("prefix")
	resp := TermsResponse{Terms: []index.TermEntry{}}
	for _, entry := range h.engine.Snapshot() {
		if !strings.HasPrefix(entry.Term, prefix) {
			continue
		}
		if len(resp.Terms) == limit {
			resp.Truncated = true
			break
		}
		resp.Terms = append(resp.Terms, entry)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
	})
}

// InvalidateCache drops cached results after a store mutation that did not
// come through this handler.
func (h *Handler) InvalidateCache(ctx context.Context) {
	h.invalidate(ctx)
}

func (h *Handler) invalidate(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("cache invalidation failed", "error", err)
	}
}

func (h *Handler) track(event analytics.Event) {
	if h.collector != nil {
		h.collector.Track(event)
	}
}

func (h *Handler) countSearch(policy indexer.Policy, resultType string) {
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(policy.String(), resultType).Inc()
	}
}

func (h *Handler) policy(raw string) (indexer.Policy, error) {
	if raw == "" {
		return h.defaultPolicy, nil
	}
	return indexer.ParsePolicy(raw)
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, apperrors.InvalidArgumentf("document id %q is not an integer", r.PathValue("id"))
	}
	return id, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		message = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
