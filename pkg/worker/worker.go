// Package worker implements the offline caching worker: request
// classification, network-first and cache-first strategies, the
// install/activate lifecycle and background refresh.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/pwa-posts-offline/pkg/batch"
	"github.com/Sternrassler/pwa-posts-offline/pkg/cache"
)

// Interceptor is the capability a platform shim drives.
type Interceptor interface {
	OnInstall(ctx context.Context) error
	OnActivate(ctx context.Context) error
	OnFetch(req *http.Request) (*http.Response, error)
	OnSync(ctx context.Context, tag string) RefreshReport
}

// Fetcher performs network requests; *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req).
func (f FetcherFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Clients takes control of open pages on activation.
type Clients interface {
	Claim(ctx context.Context, w *Worker) error
}

var _ Interceptor = (*Worker)(nil)

// Worker is one deployed version of the offline caching worker.
type Worker struct {
	cfg        Config
	scope      *url.URL
	classifier classifier
	store      *cache.Store
	fetcher    Fetcher
	refresher  *batch.Fetcher
	installer  *batch.Fetcher
	logger     zerolog.Logger

	state atomic.Int32

	mu      sync.Mutex
	clients Clients

	// writes guards fenced; cache writes hold it for reading
	writes sync.RWMutex
	fenced bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithFetcher sets the network fetcher. It must not route back through the
// worker itself.
func WithFetcher(f Fetcher) Option {
	return func(w *Worker) { w.fetcher = f }
}

// WithLogger sets the worker logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithClients sets the hook used to claim open clients on activation.
func WithClients(c Clients) Option {
	return func(w *Worker) { w.clients = c }
}

// New creates a worker version in the parsed state.
func New(cfg Config, store *cache.Store, opts ...Option) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: cache store is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()
	scope, _ := url.Parse(cfg.Scope)

	w := &Worker{
		cfg:        cfg,
		scope:      scope,
		classifier: newClassifier(cfg),
		store:      store,
		// no client timeout: a hanging network call stalls only its own request
		fetcher: &http.Client{},
		logger: log.With().
			Str("component", "offline-worker").
			Str("static_cache", cfg.CacheNames.Static).
			Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.refresher = batch.NewFetcher(w.fetcher, batch.Config{
		MaxConcurrency: cfg.RefreshConcurrency,
		Attempts:       cfg.RefreshAttempts,
	})
	w.installer = batch.NewFetcher(w.fetcher, batch.Config{
		MaxConcurrency: cfg.InstallConcurrency,
		Attempts:       1,
	})
	w.setState(StateParsed)
	return w, nil
}

// Config returns a copy of the worker configuration.
func (w *Worker) Config() Config {
	return w.cfg.clone()
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	lifecycleState.WithLabelValues(w.cfg.CacheNames.Static).Set(float64(s))
}

func (w *Worker) attach(c Clients) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clients = c
}

// OnFetch handles an outgoing request. Until the worker is activated
// requests pass straight through to the network.
func (w *Worker) OnFetch(req *http.Request) (*http.Response, error) {
	req = w.resolve(req)
	if w.State() != StateActivated {
		return w.passThrough(req, ClassUnhandled)
	}

	class := w.classifier.classify(req)
	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(string(class)).Observe(time.Since(start).Seconds())
	}()

	switch class {
	case ClassAPI:
		return w.networkFirst(req), nil
	case ClassStatic:
		return w.cacheFirst(req)
	default:
		return w.passThrough(req, class)
	}
}

// Do implements Fetcher so a worker can back a Transport directly.
func (w *Worker) Do(req *http.Request) (*http.Response, error) {
	return w.OnFetch(req)
}

// Classify reports how the worker would handle req.
func (w *Worker) Classify(req *http.Request) Class {
	return w.classifier.classify(w.resolve(req))
}

func (w *Worker) passThrough(req *http.Request, class Class) (*http.Response, error) {
	resp, err := w.fetcher.Do(req)
	if err != nil {
		fetchTotal.WithLabelValues(string(class), sourceError).Inc()
		return nil, &FetchError{Kind: KindNetwork, URL: req.URL.String(), Err: err}
	}
	fetchTotal.WithLabelValues(string(class), sourcePassthrough).Inc()
	return resp, nil
}

// resolve makes a relative request URL absolute against the scope.
func (w *Worker) resolve(req *http.Request) *http.Request {
	if req.URL.IsAbs() {
		return req
	}
	out := req.Clone(req.Context())
	out.URL = w.scope.ResolveReference(req.URL)
	out.Host = out.URL.Host
	return out
}

// scopeURL resolves a shell path against the scope.
func (w *Worker) scopeURL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return w.scope.ResolveReference(ref).String()
}

// lookup returns the entry for key in the named generation, or nil. Storage
// errors are logged and treated as a miss.
func (w *Worker) lookup(ctx context.Context, generation string, key cache.Key) *cache.Entry {
	gen, err := w.store.Generation(generation)
	if err != nil {
		w.logger.Warn().Err(err).Str("generation", generation).Msg("Invalid generation")
		return nil
	}
	entry, err := gen.Match(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			w.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache lookup failed")
		}
		return nil
	}
	return entry
}

// put writes entry under key; failures are logged, never returned.
func (w *Worker) put(ctx context.Context, generation string, key cache.Key, entry *cache.Entry) bool {
	err := w.write(ctx, generation, key, entry)
	switch {
	case errors.Is(err, errFenced):
		w.logger.Debug().Str("key", key.String()).Str("generation", generation).Msg("Superseded worker, response not cached")
		return false
	case err != nil:
		w.logger.Warn().Err(err).Str("key", key.String()).Str("generation", generation).Msg("Failed to cache response")
		return false
	}
	return true
}

// write stores entry unless the worker has been fenced by a successor.
func (w *Worker) write(ctx context.Context, generation string, key cache.Key, entry *cache.Entry) error {
	w.writes.RLock()
	defer w.writes.RUnlock()
	if w.fenced {
		return errFenced
	}
	gen, err := w.store.Generation(generation)
	if err != nil {
		return err
	}
	return gen.Put(ctx, key, entry)
}

// fence stops all further cache writes. It waits for writes in progress.
func (w *Worker) fence() {
	w.writes.Lock()
	defer w.writes.Unlock()
	w.fenced = true
}

func (w *Worker) unfence() {
	w.writes.Lock()
	defer w.writes.Unlock()
	w.fenced = false
}
