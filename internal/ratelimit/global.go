package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/maison-parfum/internal/common"
	"github.com/noah-isme/maison-parfum/internal/obs"
)

// GlobalScope labels the coarse API throttle in metrics.
const GlobalScope = "api"

// Global is a coarse per-client throttle for the whole API, independent of
// the per-endpoint budgets.
type Global struct {
	limiter *limiter.Limiter
	key     func(*http.Request) string
	onError func(error)
}

// NewGlobal builds the throttle from a formatted rate such as "300-M". A nil
// Redis client keeps counters in process memory.
func NewGlobal(formatted string, rdb *redis.Client, onError func(error)) (*Global, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse global rate %q: %w", formatted, err)
	}
	var store limiter.Store
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "parfum:global"})
		if err != nil {
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}
	return &Global{limiter: limiter.New(store, rate), key: ByClient, onError: onError}, nil
}

// Middleware rejects clients that exceed the global rate with a 429.
func (g *Global) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lctx, err := g.limiter.Get(r.Context(), g.key(r))
		if err != nil {
			if g.onError != nil {
				g.onError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		obs.RecordRateLimitDecision(GlobalScope, !lctx.Reached)

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		if lctx.Reached {
			retry := secondsUntil(lctx.Reset)
			headers.Set("Retry-After", strconv.Itoa(retry))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				"Too many requests. Please try again later.", RetryAfter{RetryAfter: retry})
			return
		}
		next.ServeHTTP(w, r)
	})
}
