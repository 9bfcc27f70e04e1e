// Package cache provides versioned response storage for the offline worker.
//
// A Store hands out named generations. Each generation maps a request Key
// (method + normalised URL) to an immutable Entry snapshot. Generations are
// superseded wholesale on redeploy by dropping the old name.
//
// Backends:
//
//   - RedisBackend: one hash per generation, generation names in a sorted set
//   - LevelDBBackend: local on-disk database
//   - MemoryBackend: process memory, for tests and single-process setups
//
// # Basic Usage
//
//	store := cache.NewStore(cache.NewRedisBackend(redisClient, ""), cache.WithHotTier(256))
//
//	gen, err := store.Open(ctx, "pwa-posts-api-v1.2")
//	if err != nil {
//		return err
//	}
//
//	key := cache.KeyFor(req)
//	entry, err := gen.Match(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from network
//	}
//
// # Response Snapshots
//
// Response bodies can only be consumed once. Snapshot reads the body a
// single time and produces two independent copies: the returned Entry and
// a fresh resp.Body for the caller.
//
//	entry, err := cache.Snapshot(req, resp)
//	if err != nil {
//		return err
//	}
//	_ = gen.Put(ctx, cache.KeyFor(req), entry)
//	return resp // body still fully readable
//
// # Metrics
//
//   - pwa_cache_hits_total{layer} - hits by layer ("hot", "backend")
//   - pwa_cache_misses_total - misses
//   - pwa_cache_writes_total - stored entries
//   - pwa_cache_generations_deleted_total - dropped generations
//   - pwa_cache_errors_total{operation} - backend errors
package cache
