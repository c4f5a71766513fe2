package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/maison-parfum/internal/common"
	"github.com/noah-isme/maison-parfum/internal/obs"
)

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
	// Scope labels decisions in metrics, e.g. "promo_validate".
	Scope string
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

// ByClient keys requests on the proxy-derived client identifier.
func ByClient(r *http.Request) string {
	return common.ClientIdentifier(r.Header)
}

// RetryAfter is the details payload of a 429 response.
type RetryAfter struct {
	RetryAfter int `json:"retryAfter"`
}

// Middleware implements the http.Handler middleware interface. Limiter
// failures let the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		keyFn := h.Config.Key
		if keyFn == nil {
			keyFn = ByClient
		}
		key := h.Config.Scope + ":" + keyFn(r)
		res, err := h.Limiter.Allow(r.Context(), key, h.Config.Max, h.Config.Window)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		obs.RecordRateLimitDecision(h.Config.Scope, res.Allowed)

		limitValue := h.Config.Max
		if limitValue < 0 {
			limitValue = 0
		}
		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(limitValue))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.Itoa(res.ResetInSeconds))

		if !res.Allowed {
			headers.Set("Retry-After", strconv.Itoa(res.ResetInSeconds))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				"Too many requests. Please try again later.", RetryAfter{RetryAfter: res.ResetInSeconds})
			return
		}

		next.ServeHTTP(w, r)
	})
}
