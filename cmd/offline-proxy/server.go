package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pwa-posts-offline/internal/config"
	"github.com/Sternrassler/pwa-posts-offline/pkg/cache"
	"github.com/Sternrassler/pwa-posts-offline/pkg/logging"
	"github.com/Sternrassler/pwa-posts-offline/pkg/metrics"
	"github.com/Sternrassler/pwa-posts-offline/pkg/worker"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type server struct {
	cfg     config.Config
	origin  *url.URL
	store   *cache.Store
	network worker.Fetcher
	reg     *worker.Registration
	logger  zerolog.Logger
}

func newServer(cfg config.Config, store *cache.Store, network worker.Fetcher) (*server, error) {
	origin, err := url.Parse(cfg.Server.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	return &server{
		cfg:     cfg,
		origin:  origin,
		store:   store,
		network: network,
		reg:     worker.NewRegistration(network),
		logger:  logging.NewLogger("proxy"),
	}, nil
}

// install registers a worker for version built from the current config.
func (s *server) install(ctx context.Context, version string) error {
	cfg := s.cfg
	if version != "" {
		cfg.Worker.Version = version
	}
	wc, err := cfg.WorkerConfig()
	if err != nil {
		return err
	}
	w, err := worker.New(wc, s.store,
		worker.WithFetcher(s.network),
		worker.WithLogger(logging.NewLogger("offline-worker").With().Str("static_cache", wc.CacheNames.Static).Logger()),
	)
	if err != nil {
		return err
	}
	return s.reg.Register(ctx, w)
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/_worker", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/install", s.handleInstall)
		r.Post("/sync", s.handleSync)
	})
	r.HandleFunc("/*", s.handleProxy)

	proxy := http.HandlerFunc(s.handleProxy)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// proxy-form requests target other hosts and never hit admin routes
		if req.URL.IsAbs() {
			proxy.ServeHTTP(w, req)
			return
		}
		r.ServeHTTP(w, req)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

type statusResponse struct {
	State       string   `json:"state"`
	StaticCache string   `json:"static_cache,omitempty"`
	APICache    string   `json:"api_cache,omitempty"`
	Generations []string `json:"generations"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := statusResponse{State: "none", Generations: []string{}}
	if active := s.reg.Active(); active != nil {
		names := active.Config().CacheNames
		status.State = active.State().String()
		status.StaticCache = names.Static
		status.APICache = names.API
	}
	names, err := s.store.Names(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list generations")
	} else if names != nil {
		status.Generations = names
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *server) handleInstall(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("version")
	if err := s.install(r.Context(), version); err != nil {
		status := http.StatusInternalServerError
		var ie *worker.InstallError
		if errors.As(err, &ie) {
			status = http.StatusBadGateway
		} else if errors.Is(err, worker.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		s.logger.Error().Err(err).Str("version", version).Msg("Install failed")
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	s.handleStatus(w, r)
}

type syncResponse struct {
	Tag       string            `json:"tag"`
	Handled   bool              `json:"handled"`
	Updated   []string          `json:"updated"`
	Unchanged []string          `json:"unchanged"`
	Failed    map[string]string `json:"failed"`
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		tag = s.cfg.Worker.SyncTag
	}
	report := s.reg.Sync(r.Context(), tag)

	out := syncResponse{
		Tag:       report.Tag,
		Handled:   report.Handled,
		Updated:   append([]string{}, report.Updated...),
		Unchanged: append([]string{}, report.Unchanged...),
		Failed:    make(map[string]string, len(report.Failed)),
	}
	for u, err := range report.Failed {
		out.Failed[u] = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// handleProxy routes a browser request through the active worker.
func (s *server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target := s.targetURL(r)
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}
	out.Header = r.Header.Clone()
	removeHopHeaders(out.Header)
	out.ContentLength = r.ContentLength

	resp, err := s.reg.Fetch(out)
	if err != nil {
		s.logger.Error().Err(err).Str("url", target).Msg("Upstream request failed")
		http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for key, values := range resp.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	removeHopHeaders(header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Warn().Err(err).Str("url", target).Msg("Failed to write response")
	}
}

// targetURL is the absolute URL a proxied request addresses: the request URI
// itself in proxy form, otherwise the path on the configured origin.
func (s *server) targetURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	return s.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery}).String()
}

func removeHopHeaders(h http.Header) {
	for _, key := range hopHeaders {
		h.Del(key)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
