package worker

import (
	"net/http"

	"github.com/Sternrassler/pwa-posts-offline/pkg/cache"
)

// networkFirst serves API requests. A successful network response is stored
// in the API generation and returned untouched; any failure falls back to
// the stored entry, then to the fixed offline response. It never errors.
func (w *Worker) networkFirst(req *http.Request) *http.Response {
	ctx := req.Context()
	key := cache.KeyFor(req)
	generation := w.cfg.CacheNames.API

	resp, ferr := w.fetchNetwork(req)
	if ferr == nil {
		if cache.Cacheable(resp.StatusCode) {
			entry, err := cache.Snapshot(req, resp)
			if err == nil {
				w.put(ctx, generation, key, entry)
				fetchTotal.WithLabelValues(string(ClassAPI), sourceNetwork).Inc()
				return resp
			}
			ferr = &FetchError{Kind: KindNetwork, URL: req.URL.String(), Err: err}
		} else {
			resp.Body.Close()
			ferr = &FetchError{Kind: KindHTTP, URL: req.URL.String(), Status: resp.StatusCode}
		}
	}

	w.logger.Debug().
		Err(ferr).
		Str("url", req.URL.String()).
		Msg("Network request failed, trying cache")

	if entry := w.lookup(ctx, generation, key); entry != nil {
		fetchTotal.WithLabelValues(string(ClassAPI), sourceCache).Inc()
		out := cache.EntryToResponse(entry, req)
		out.Header.Set(OfflineHeader, "hit")
		return out
	}

	fetchTotal.WithLabelValues(string(ClassAPI), sourceOffline).Inc()
	return OfflineResponse(req)
}

// fetchNetwork performs req and maps transport errors to FetchError.
func (w *Worker) fetchNetwork(req *http.Request) (*http.Response, *FetchError) {
	resp, err := w.fetcher.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: req.URL.String(), Err: err}
	}
	return resp, nil
}
