// Package cache stores fetched pages of the artworks API in Redis.
//
// Pages are cached for as long as the upstream allows:
//
//   - Cache-Control max-age wins, then the Expires header, then DefaultTTL
//   - ETag and Last-Modified are kept so a stale page is revalidated with a
//     conditional request instead of being downloaded again
//   - a 304 Not Modified extends the TTL of the stored entry
//
// # Basic Usage
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.CacheKey{
//		Host:        "api.artic.edu",
//		Endpoint:    "/api/v1/artworks",
//		QueryParams: url.Values{"page": []string{"2"}, "limit": []string{"12"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch the page
//	}
//
// # Metrics
//
//   - artsel_cache_hits_total{state="fresh|stale"}
//   - artsel_cache_misses_total
//   - artsel_cache_entry_bytes
//   - artsel_304_responses_total
//   - artsel_conditional_requests_total
//   - artsel_cache_errors_total{operation}
//
// Selection state is never cached here; only page payloads are.
package cache
