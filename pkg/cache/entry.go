package cache

import (
	"encoding/json"
	"time"
)

// CacheEntry is a cached value with its freshness window.
type CacheEntry struct {
	// Data is the JSON-encoded value
	Data json.RawMessage `json:"data"`

	// Expires is when the entry stops being fresh
	Expires time.Time `json:"expires"`

	// CachedAt is when the value was stored
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry is no longer fresh.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the entry was stored.
func (e *CacheEntry) Age() time.Duration {
	return time.Since(e.CachedAt)
}

func newEntry(v any, ttl time.Duration) (*CacheEntry, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &CacheEntry{
		Data:     data,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}, nil
}

func decode[T any](e *CacheEntry) (T, error) {
	var v T
	err := json.Unmarshal(e.Data, &v)
	return v, err
}
