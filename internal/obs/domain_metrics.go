package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout commit outcomes.
	CheckoutTotal *prometheus.CounterVec
	// CouponEvaluationTotal counts coupon evaluations by reason code.
	CouponEvaluationTotal *prometheus.CounterVec
	// CouponFallbackTotal counts orders committed undiscounted after losing
	// the usage-limit race.
	CouponFallbackTotal prometheus.Counter
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// ShippingQuoteLatency records shipping quote latency in milliseconds.
	ShippingQuoteLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout commit outcomes.",
		}, []string{"result"})
		CouponEvaluationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_evaluation_total",
			Help:      "Count of coupon evaluations by reason code.",
		}, []string{"reason"})
		CouponFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_fallback_total",
			Help:      "Orders committed undiscounted after losing the usage-limit race.",
		})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"result"})
		ShippingQuoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shipping_quote_duration_ms",
			Help:      "Latency for shipping quote computation in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"shipping_type"})

		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, CouponEvaluationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CouponEvaluationTotal = v
			}
		})
		mustRegisterCollector(reg, CouponFallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CouponFallbackTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
		mustRegisterCollector(reg, ShippingQuoteLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ShippingQuoteLatency = v
			}
		})
	})
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
