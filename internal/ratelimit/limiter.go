// Package ratelimit bounds how often an identifier may hit an endpoint using
// fixed-window counters. Bursts of up to twice the limit are possible across
// a window boundary; that is the accepted cost of the fixed window.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result reports a single limiter decision.
type Result struct {
	Allowed        bool
	Remaining      int
	ResetInSeconds int
}

// Limiter counts a hit for key and decides whether it fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// ceilSeconds rounds a positive duration up to whole seconds.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// secondsUntil converts a unix reset timestamp into whole seconds from now.
func secondsUntil(resetUnix int64) int {
	return ceilSeconds(time.Until(time.Unix(resetUnix, 0)))
}
