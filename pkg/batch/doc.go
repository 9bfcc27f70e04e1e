// Package batch fetches a set of URLs in parallel and snapshots each
// successful response into a cache entry.
//
// It is used by the worker for shell pre-caching and background refresh.
// Results are independent: one failing URL never affects the others.
//
// Example usage:
//
//	fetcher := batch.NewFetcher(http.DefaultClient, batch.DefaultConfig())
//	for _, res := range fetcher.FetchAll(ctx, urls) {
//		if res.Err != nil {
//			continue
//		}
//		_ = gen.Put(ctx, res.Entry.Key(), res.Entry)
//	}
//
// The fetcher:
//   - Spawns a worker pool (default 4 workers)
//   - Retries failed URLs with exponential backoff when Attempts > 1
//   - Treats non-2xx statuses as failures (StatusError)
//   - Applies no per-request timeout; the context governs cancellation
package batch
