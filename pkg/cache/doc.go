// Package cache provides the Redis-backed fetch-through cache that sits in
// front of the upstream market-data API.
//
// The package has three layers:
//
// - Manager is the KV store adapter: JSON entries in Redis with a per-key expiration
// - Locker sets and clears busy markers (<key>_busy) with a hard TTL ceiling
// - Cache[T] combines both into a single-flight resolve with stale serving
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	manager := cache.NewManager(redisClient)
//	locker := cache.NewLocker(redisClient, 5*time.Second)
//	quotes := cache.New[coin.Quote](manager, locker, "quote")
//
//	key := cache.CacheKey{Namespace: "quote", ID: "1"}
//	q, err := quotes.Resolve(ctx, key, cache.TTLSpotPrice, false, func(ctx context.Context) (coin.Quote, error) {
//		return upstream.Quote(ctx, 1)
//	})
//
// # Freshness
//
// An entry is fresh until its Expires time. Redis keeps it for an additional
// stale retention window so that callers arriving while a refresh is in flight,
// or while the upstream is failing, can still be served the last value.
//
// # Single Flight
//
// At most one upstream call per key is in flight. Inside a process callers are
// coalesced with golang.org/x/sync/singleflight; across processes the busy
// marker decides who fetches. A caller that loses the marker race gets the
// stale value when there is one and otherwise waits for the holder to publish.
//
// # Metrics
//
//   - coinrate_cache_hits_total{cache,state} - fresh and stale serves
//   - coinrate_cache_misses_total{cache} - lookups with no entry at all
//   - coinrate_cache_errors_total{operation} - Redis operation errors
//   - coinrate_cache_flights_total{cache,result} - upstream refreshes by outcome
//   - coinrate_cache_coalesced_total{cache} - callers that shared another caller's flight
//   - coinrate_cache_busy_waits_total{cache} - polls while another process held the marker
//   - coinrate_cache_fetch_duration_seconds{cache} - upstream fetch latency
package cache
