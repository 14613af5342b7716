package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout applies a deadline to the request context. Handlers observe the
// deadline through ctx.Done(); upstream calls inherit it. A zero timeout
// disables the middleware.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
