package batch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/pwa-posts-offline/pkg/cache"
)

// Doer executes HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests
	MaxConcurrency int

	// Retry
	Attempts          int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultConfig returns a configuration without retries.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:    4,
		Attempts:          1,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// StatusError is returned for responses with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Result is the outcome of fetching one URL.
type Result struct {
	URL      string
	Entry    *cache.Entry
	Attempts int
	Err      error
}

// Fetcher fetches URLs in parallel.
type Fetcher struct {
	doer   Doer
	config Config
}

// NewFetcher creates a new batch fetcher.
func NewFetcher(doer Doer, config Config) *Fetcher {
	if doer == nil {
		doer = http.DefaultClient
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Attempts <= 0 {
		config.Attempts = 1
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 500 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 10 * time.Second
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 2.0
	}
	return &Fetcher{doer: doer, config: config}
}

// FetchAll fetches every URL with a worker pool and returns results in
// input order.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Result {
	start := time.Now()
	results := make([]Result, len(urls))
	if len(urls) == 0 {
		return results
	}

	queue := make(chan int, len(urls))
	for i := range urls {
		queue <- i
	}
	close(queue)

	workers := f.config.MaxConcurrency
	if workers > len(urls) {
		workers = len(urls)
	}

	var wg sync.WaitGroup
	for id := 0; id < workers; id++ {
		wg.Add(1)
		go f.worker(ctx, urls, queue, results, &wg, id)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Debug().
		Int("urls", len(urls)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results
}

// worker processes URL indexes from the queue. Each index is written by
// exactly one worker.
func (f *Fetcher) worker(ctx context.Context, urls []string, queue <-chan int, results []Result, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for i := range queue {
		select {
		case <-ctx.Done():
			results[i] = Result{URL: urls[i], Err: ctx.Err()}
			continue
		default:
		}
		results[i] = f.FetchOne(ctx, urls[i])
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("processed", processed).
			Msg("Batch worker completed")
	}
}

// FetchOne fetches a single URL, retrying per the configured attempts.
func (f *Fetcher) FetchOne(ctx context.Context, rawURL string) Result {
	res := Result{URL: rawURL}
	res.Attempts, res.Err = retryWithBackoff(ctx, f.config, func() error {
		entry, err := f.fetch(ctx, rawURL)
		if err != nil {
			return err
		}
		res.Entry = entry
		return nil
	})
	return res
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*cache.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.doer.Do(req)
	if err != nil {
		return nil, err
	}
	if !cache.Cacheable(resp.StatusCode) {
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	entry, err := cache.Snapshot(req, resp)
	if err != nil {
		return nil, err
	}
	return entry, nil
}
