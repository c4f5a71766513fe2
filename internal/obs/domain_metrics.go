package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PromoValidationsTotal counts promo validation outcomes by rejection reason.
	PromoValidationsTotal *prometheus.CounterVec
	// RateLimitDecisionsTotal counts limiter decisions per scope.
	RateLimitDecisionsTotal *prometheus.CounterVec
	// OrdersCreatedTotal counts finalized orders, split by whether a promo was redeemed.
	OrdersCreatedTotal *prometheus.CounterVec
	// SettingsFallbackTotal counts reads that fell back to default shop settings.
	SettingsFallbackTotal prometheus.Counter
	// BreakerState reports each circuit breaker: 0 closed, 1 open, 2 half-open.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitionsTotal counts breaker state changes.
	BreakerTransitionsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PromoValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_validations_total",
			Help:      "Count of promo code validations by result.",
		}, []string{"result"})
		RateLimitDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Count of rate limiter decisions by scope and result.",
		}, []string{"scope", "result"})
		OrdersCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Count of orders created at checkout.",
		}, []string{"promo"})
		SettingsFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_fallback_total",
			Help:      "Number of shop settings reads served from defaults.",
		})
		BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current circuit breaker state: 0=closed, 1=open, 2=half-open.",
		}, []string{"target"})
		BreakerTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Count of circuit breaker state transitions.",
		}, []string{"target", "from", "to"})

		mustRegisterCollector(reg, PromoValidationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromoValidationsTotal = v
			}
		})
		mustRegisterCollector(reg, RateLimitDecisionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RateLimitDecisionsTotal = v
			}
		})
		mustRegisterCollector(reg, OrdersCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersCreatedTotal = v
			}
		})
		mustRegisterCollector(reg, SettingsFallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SettingsFallbackTotal = v
			}
		})
		mustRegisterCollector(reg, BreakerState, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.GaugeVec); ok {
				BreakerState = v
			}
		})
		mustRegisterCollector(reg, BreakerTransitionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BreakerTransitionsTotal = v
			}
		})
	})
}

// RecordPromoValidation increments the promo validation counter when registered.
func RecordPromoValidation(result string) {
	if PromoValidationsTotal != nil {
		PromoValidationsTotal.WithLabelValues(result).Inc()
	}
}

// RecordRateLimitDecision increments the limiter decision counter when registered.
func RecordRateLimitDecision(scope string, allowed bool) {
	if RateLimitDecisionsTotal == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	RateLimitDecisionsTotal.WithLabelValues(scope, result).Inc()
}

// RecordOrderCreated increments the order counter when registered.
func RecordOrderCreated(withPromo bool) {
	if OrdersCreatedTotal == nil {
		return
	}
	label := "none"
	if withPromo {
		label = "redeemed"
	}
	OrdersCreatedTotal.WithLabelValues(label).Inc()
}

// RecordSettingsFallback increments the settings fallback counter when registered.
func RecordSettingsFallback() {
	if SettingsFallbackTotal != nil {
		SettingsFallbackTotal.Inc()
	}
}

// RecordBreakerState publishes a breaker state and, when from differs from
// to, counts the transition.
func RecordBreakerState(target, from, to string, value float64) {
	if BreakerState != nil {
		BreakerState.WithLabelValues(target).Set(value)
	}
	if from != to && BreakerTransitionsTotal != nil {
		BreakerTransitionsTotal.WithLabelValues(target, from, to).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
