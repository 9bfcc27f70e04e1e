package worker

import (
	"net/http"

	"github.com/Sternrassler/pwa-posts-offline/pkg/cache"
)

// cacheFirst serves static requests from the static generation, fetching
// and storing on a miss. Offline navigations fall back to the shell
// document; any other network failure is returned as a FetchError.
func (w *Worker) cacheFirst(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	key := cache.KeyFor(req)
	generation := w.cfg.CacheNames.Static

	if entry := w.lookup(ctx, generation, key); entry != nil {
		fetchTotal.WithLabelValues(string(ClassStatic), sourceCache).Inc()
		return cache.EntryToResponse(entry, req), nil
	}

	resp, ferr := w.fetchNetwork(req)
	if ferr == nil {
		if !cache.Cacheable(resp.StatusCode) {
			// returned as-is, never stored
			fetchTotal.WithLabelValues(string(ClassStatic), sourceNetwork).Inc()
			return resp, nil
		}
		entry, err := cache.Snapshot(req, resp)
		if err == nil {
			w.put(ctx, generation, key, entry)
			fetchTotal.WithLabelValues(string(ClassStatic), sourceNetwork).Inc()
			return resp, nil
		}
		ferr = &FetchError{Kind: KindNetwork, URL: req.URL.String(), Err: err}
	}

	if IsNavigation(req) && w.cfg.ShellDocument != "" {
		if shell := w.shellDocument(req); shell != nil {
			w.logger.Debug().
				Str("url", req.URL.String()).
				Msg("Serving shell document for offline navigation")
			fetchTotal.WithLabelValues(string(ClassStatic), sourceShell).Inc()
			return shell, nil
		}
	}

	fetchTotal.WithLabelValues(string(ClassStatic), sourceError).Inc()
	return nil, ferr
}

func (w *Worker) shellDocument(req *http.Request) *http.Response {
	key, err := cache.NewKey(http.MethodGet, w.scopeURL(w.cfg.ShellDocument))
	if err != nil {
		return nil
	}
	entry := w.lookup(req.Context(), w.cfg.CacheNames.Static, key)
	if entry == nil {
		return nil
	}
	return cache.EntryToResponse(entry, req)
}
