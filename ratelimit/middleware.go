package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// ClientIP returns the request's remote host. Run chi's RealIP middleware
// first so proxy headers are honoured.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware limits requests per client. Paths in skip bypass the limiter.
// Every checked response carries X-RateLimit-Limit and X-RateLimit-Remaining.
func (l *Limiter) Middleware(extractClient func(*http.Request) string, skip ...string) func(http.Handler) http.Handler {
	if extractClient == nil {
		extractClient = ClientIP
	}
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] || skipped[strings.TrimSuffix(r.URL.Path, "/")] {
				next.ServeHTTP(w, r)
				return
			}

			res := l.Allow(r.Context(), extractClient(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

			if !res.Allowed {
				retry := int(math.Ceil(res.RetryAfter.Seconds()))
				if retry <= 0 {
					retry = int(math.Ceil(l.cfg.Window.Seconds()))
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"detail": "Too many requests. Try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
