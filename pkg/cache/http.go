package cache

import (
	"fmt"
	"net/http"
	"time"
)

// WriteHeaders sets caching headers for a response built from a cached value.
// Stale serves get a zero max-age so downstream caches revalidate.
func WriteHeaders(h http.Header, info Info) {
	if !info.CachedAt.IsZero() {
		h.Set("Last-Modified", info.CachedAt.UTC().Format(http.TimeFormat))
	}
	if !info.Expires.IsZero() {
		h.Set("Expires", info.Expires.UTC().Format(http.TimeFormat))
	}

	maxAge := 0
	if info.State != StateStale {
		if ttl := time.Until(info.Expires); ttl > 0 {
			maxAge = int(ttl.Seconds())
		}
	}
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))

	if info.State != "" {
		h.Set("X-Cache", string(info.State))
	}
}

// NotModified reports whether the request's If-Modified-Since header covers
// lastModified. HTTP dates have second precision.
func NotModified(r *http.Request, lastModified time.Time) bool {
	if r == nil || lastModified.IsZero() {
		return false
	}
	ims := r.Header.Get("If-Modified-Since")
	if ims == "" {
		return false
	}
	t, err := http.ParseTime(ims)
	if err != nil {
		return false
	}
	return !lastModified.Truncate(time.Second).After(t)
}
