// Package resilience guards calls to flaky dependencies.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/maison-parfum/internal/obs"
)

// ErrOpenCircuit is returned without calling the dependency while the
// breaker is open.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Target names the guarded dependency in logs and metrics.
	Target string
	// MinRequests is the sample size before the failure ratio is evaluated.
	MinRequests  int
	FailureRatio float64
	// OpenFor is the cool-off before a single probe is let through.
	OpenFor time.Duration
}

// Breaker is a failure-ratio circuit breaker. While open, calls fail fast
// with ErrOpenCircuit; after OpenFor one probe decides whether to close.
type Breaker struct {
	cfg    BreakerConfig
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
}

// NewBreaker builds a breaker, filling unset config with defaults of 5
// requests, a 0.5 ratio and 30s open.
func NewBreaker(cfg BreakerConfig, logger zerolog.Logger) *Breaker {
	if cfg.Target == "" {
		cfg.Target = "default"
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	b := &Breaker{cfg: cfg, logger: logger, now: time.Now}
	obs.RecordBreakerState(cfg.Target, Closed.String(), Closed.String(), stateValue(Closed))
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn unless the breaker is open and records its outcome. Context
// cancellation by the caller is not counted as a dependency failure.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.allow(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release()
		return err
	}
	b.report(ctx, err == nil)
	return err
}

func (b *Breaker) allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.transitionLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

func (b *Breaker) release() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.transitionLocked(ctx, Closed)
		} else {
			b.transitionLocked(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.cfg.MinRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.cfg.FailureRatio {
		b.transitionLocked(ctx, Open)
		return
	}
	// Halve the window so old successes do not mask a new outage.
	if total > 2*b.cfg.MinRequests {
		b.successes = (b.successes + 1) / 2
		b.failures = (b.failures + 1) / 2
	}
}

func (b *Breaker) transitionLocked(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.failures, b.successes = 0, 0
	if next == Open {
		b.openedAt = b.now()
	}
	obs.RecordBreakerState(b.cfg.Target, prev.String(), next.String(), stateValue(next))

	logger := b.logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Warn()
	if next == Closed {
		evt = logger.Info()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Str("target", b.cfg.Target).Str("from_state", prev.String()).Str("to_state", next.String()).Msg("breaker_transition")
}

func stateValue(s State) float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}
