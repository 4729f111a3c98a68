package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/salesbench/internal/telemetry"
)

// retryAfterSeconds is advertised on every throttled response.
const retryAfterSeconds = "1"

// KeyFunc picks the bucket for a request; "" skips throttling.
type KeyFunc func(r *http.Request) string

// DenyFunc renders the throttled response body.
type DenyFunc func(w http.ResponseWriter, r *http.Request)

var decisions = sync.OnceValue(func() otelmetric.Int64Counter {
	c, _ := telemetry.Meter("salesbench/ratelimit").Int64Counter("ratelimit.decisions",
		otelmetric.WithDescription("Rate limiter outcomes by result"))
	return c
})

func record(r *http.Request, result string) {
	if c := decisions(); c != nil {
		c.Add(r.Context(), 1, otelmetric.WithAttributes(attribute.String("result", result)))
	}
}

// Middleware wraps handlers with limiter. A nil limiter disables it.
func Middleware(limiter Limiter, keyFunc KeyFunc, deny DenyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := limiter.Allow(r.Context(), key)
			switch {
			case err != nil:
				record(r, "error")
				logger.Warn("ratelimit: limiter failed, letting request through", "key", key, "error", err)
			case !allowed:
				record(r, "denied")
				w.Header().Set("Retry-After", retryAfterSeconds)
				deny(w, r)
				return
			default:
				record(r, "allowed")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc buckets by the TCP peer address. Forwarding headers are not
// trusted because clients control them.
func IPKeyFunc(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
