package cache

import (
	"bytes"
	"net/http"
)

// KeyFunc derives a cache key from a request. Route handlers typically key
// on URL path plus raw query string.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc keys on path and raw query string.
func DefaultKeyFunc(r *http.Request) string {
	return r.URL.Path + "?" + r.URL.RawQuery
}

// TagFunc derives invalidation tags from a request, e.g. ticker:005930 from
// the route's ticker parameter.
type TagFunc func(r *http.Request) []string

type recorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (rec *recorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	rec.body = append(rec.body, b...)
	return rec.ResponseWriter.Write(b)
}

// emptyJSONBody reports whether a response body carries no data. Empty
// results must never be cached: a transient empty upstream response would
// otherwise be served for the entry's whole TTL instead of retrying
// discovery on the next read.
func emptyJSONBody(b []byte) bool {
	trimmed := bytes.TrimSpace(b)
	switch string(trimmed) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}

// Wrap caches handler's response body under class's TTL, tagged for later
// invalidation. A request carrying X-No-Cache: true or force_refresh=true
// bypasses both the lookup and the write-back, per the cache bypass
// contract. Non-2xx and empty responses are never cached.
func Wrap(c *Cache, class Class, keyFn KeyFunc, tagFn TagFunc, handler http.HandlerFunc) http.HandlerFunc {
	if keyFn == nil {
		keyFn = DefaultKeyFunc
	}
	return func(w http.ResponseWriter, r *http.Request) {
		noCache := r.Header.Get("X-No-Cache") == "true" || r.URL.Query().Get("force_refresh") == "true"
		key := keyFn(r)

		if !noCache {
			if body, ok := c.Get(key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				w.Write(body.([]byte))
				return
			}
		} else {
			c.InvalidateKey(key)
		}

		rec := &recorder{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rec, r)

		if noCache {
			return
		}
		if rec.statusCode >= 200 && rec.statusCode < 300 && !emptyJSONBody(rec.body) {
			var tags []string
			if tagFn != nil {
				tags = tagFn(r)
			}
			c.Set(key, rec.body, class, tags...)
		}
	}
}
