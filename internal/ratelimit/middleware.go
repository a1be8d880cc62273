package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/kuitang/shared-notes/internal/obs"
)

// TooManyRequestsMessage is the body message of a 429 response.
const TooManyRequestsMessage = "Too many requests, please try again later."

// Middleware enforces limiter per key. Requests for which keyFunc returns ""
// are not limited.
//
// Rejected requests get 429 with a JSON message and a Retry-After header in
// whole seconds. Allowed requests carry X-RateLimit-Remaining.
func Middleware(limiter *RateLimiter, keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(limiter.RetryAfter().Seconds())))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			bucket := limiter.GetLimiter(key)
			if !bucket.Allow() {
				obs.From(r.Context()).With("pkg", "ratelimit").Warn("rate limit exceeded", "key", key, "path", r.URL.Path)
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"message": TooManyRequestsMessage})
				return
			}

			remaining := int(bucket.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by the host part of RemoteAddr. Client-supplied
// headers are ignored.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ForwardedClientIP keys requests by the first X-Forwarded-For hop, falling
// back to ClientIP. Only use it behind a proxy that overwrites the header.
func ForwardedClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return ClientIP(r)
}

// KeyFunc picks ForwardedClientIP when proxy headers are trusted and ClientIP
// otherwise.
func KeyFunc(trustProxyHeaders bool) func(*http.Request) string {
	if trustProxyHeaders {
		return ForwardedClientIP
	}
	return ClientIP
}
