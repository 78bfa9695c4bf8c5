// Command loadtest seeds the search service with generated documents and
// hammers the search endpoint from concurrent workers, then prints latency
// percentiles and status-code counts.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var vocabulary = []string{
	"cat", "dog", "fluffy", "groomed", "collar", "tail", "white", "black",
	"starling", "parrot", "eyes", "expressive", "fashionable", "small", "large",
	"hamster", "rabbit", "whiskers", "paws", "feather",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Seed        int
	Policy      string
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	emptyResults  atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

type searchResult struct {
	Results  []json.RawMessage `json:"results"`
	CacheHit bool              `json:"cache_hit"`
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, result *searchResult, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if result != nil {
		if result.CacheHit {
			s.cacheHits.Add(1)
		}
		if len(result.Results) == 0 {
			s.emptyResults.Add(1)
		}
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, duration)
	s.statusCodes[statusCode]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	seed := flag.Int("seed", 1000, "documents to add before the run; 0 skips seeding")
	policy := flag.String("policy", "sequential", "execution policy: sequential or parallel")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Seed:        *seed,
		Policy:      *policy,
		Queries:     generateQueries(50),
	}

	fmt.Println("=== Search Server Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Policy:      %s\n", cfg.Policy)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	client := newClient(cfg.Concurrency)
	if cfg.Seed > 0 {
		start := time.Now()
		if err := seedDocuments(context.Background(), client, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d documents in %s\n\n", cfg.Seed, time.Since(start).Round(time.Millisecond))
	}

	stats := runLoadTest(client, cfg)
	printReport(stats, cfg.Duration)
}

func newClient(concurrency int) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func generateQueries(n int) []string {
	r := rand.New(rand.NewPCG(1, 2))
	queries := make([]string, n)
	for i := range queries {
		words := make([]string, 0, 4)
		for range 1 + r.IntN(3) {
			words = append(words, vocabulary[r.IntN(len(vocabulary))])
		}
		if r.IntN(3) == 0 {
			words = append(words, "-"+vocabulary[r.IntN(len(vocabulary))])
		}
		queries[i] = strings.Join(words, " ")
	}
	return queries
}

// seedDocuments posts cfg.Seed documents with ids 0..Seed-1. Ids that already
// exist are skipped, so the tool can be rerun against the same server.
func seedDocuments(ctx context.Context, client *http.Client, cfg Config) error {
	r := rand.New(rand.NewPCG(3, 4))
	docs := make([][]byte, cfg.Seed)
	for id := range docs {
		words := make([]string, 3+r.IntN(8))
		for i := range words {
			words[i] = vocabulary[r.IntN(len(vocabulary))]
		}
		ratings := []int{r.IntN(21) - 10, r.IntN(21) - 10}
		body, err := json.Marshal(map[string]any{
			"id":      id,
			"text":    strings.Join(words, " "),
			"ratings": ratings,
		})
		if err != nil {
			return err
		}
		docs[id] = body
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for id, body := range docs {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/documents", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("document %d: %w", id, err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
				return fmt.Errorf("document %d: unexpected status %d", id, resp.StatusCode)
			}
			return nil
		})
	}
	return g.Wait()
}

func runLoadTest(client *http.Client, cfg Config) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := range cfg.Concurrency {
		wg.Go(func() {
			queryIdx := w
			for ctx.Err() == nil {
				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++
				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&policy=%s",
					cfg.BaseURL, url.QueryEscape(query), url.QueryEscape(cfg.Policy))

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
				if err != nil {
					stats.RecordRequest(0, 0, nil, err)
					continue
				}
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(time.Since(start), 0, nil, err)
					}
					continue
				}
				var result searchResult
				decodeErr := json.NewDecoder(resp.Body).Decode(&result)
				resp.Body.Close()
				elapsed := time.Since(start)
				if decodeErr != nil {
					stats.RecordRequest(elapsed, resp.StatusCode, nil, nil)
					continue
				}
				stats.RecordRequest(elapsed, resp.StatusCode, &result, nil)
			}
		})
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	failed := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", failed)
	fmt.Printf("Cache Hits:      %d\n", stats.cacheHits.Load())
	fmt.Printf("Empty Results:   %d\n", stats.emptyResults.Load())
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	latencies := slices.Clone(stats.latencies)
	codes := make(map[int]int64, len(stats.statusCodes))
	for code, n := range stats.statusCodes {
		codes[code] = n
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l) - float64(avg)
			sumSquared += diff * diff
		}
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	slices.Sort(keys)
	for _, code := range keys {
		fmt.Printf("  %d: %d\n", code, codes[code])
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
