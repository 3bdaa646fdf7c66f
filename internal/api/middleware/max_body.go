package middleware

import (
	"net/http"

	"github.com/cloo-solutions/docrag/internal/api"
)

// DefaultMaxBodyBytes bounds ingestion payloads; documents arrive as plain
// text in the request body.
const DefaultMaxBodyBytes int64 = 10 * 1024 * 1024

// MaxBodyBytes limits request body size.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
