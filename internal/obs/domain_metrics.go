package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ShippingQuoteTotal counts shipping quote outcomes per store group request.
	ShippingQuoteTotal *prometheus.CounterVec
	// CheckoutSubmitTotal counts checkout submissions by mode and outcome.
	CheckoutSubmitTotal *prometheus.CounterVec
	// MarketplaceRequestLatency records upstream call latency in milliseconds.
	MarketplaceRequestLatency *prometheus.HistogramVec
	// SkippedLineItems counts purchase lines dropped during grouping.
	SkippedLineItems prometheus.Counter
	// EventDeliveriesTotal counts webhook deliveries of checkout events.
	EventDeliveriesTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ShippingQuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_quote_total",
			Help:      "Count of shipping quote outcomes.",
		}, []string{"result"})
		CheckoutSubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_submit_total",
			Help:      "Count of checkout submissions by mode and outcome.",
		}, []string{"mode", "result"})
		MarketplaceRequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "marketplace_request_duration_ms",
			Help:      "Latency of marketplace API calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation", "result"})
		SkippedLineItems = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_skipped_line_items_total",
			Help:      "Number of purchase lines skipped because the product reference was missing.",
		})
		EventDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_deliveries_total",
			Help:      "Count of checkout event webhook deliveries by topic and result.",
		}, []string{"topic", "result"})

		mustRegisterCollector(reg, ShippingQuoteTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ShippingQuoteTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutSubmitTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutSubmitTotal = v
			}
		})
		mustRegisterCollector(reg, MarketplaceRequestLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				MarketplaceRequestLatency = v
			}
		})
		mustRegisterCollector(reg, SkippedLineItems, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SkippedLineItems = v
			}
		})
		mustRegisterCollector(reg, EventDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				EventDeliveriesTotal = v
			}
		})
	})
}

// IncShippingQuote records a quote outcome when domain metrics are registered.
func IncShippingQuote(result string) {
	if ShippingQuoteTotal != nil {
		ShippingQuoteTotal.WithLabelValues(result).Inc()
	}
}

// IncCheckoutSubmit records a submission outcome when domain metrics are registered.
func IncCheckoutSubmit(mode, result string) {
	if CheckoutSubmitTotal != nil {
		CheckoutSubmitTotal.WithLabelValues(mode, result).Inc()
	}
}

// ObserveMarketplace records the latency of an upstream call.
func ObserveMarketplace(operation, result string, ms float64) {
	if MarketplaceRequestLatency != nil {
		MarketplaceRequestLatency.WithLabelValues(operation, result).Observe(ms)
	}
}

// IncSkippedLineItems counts dropped purchase lines.
func IncSkippedLineItems(n int) {
	if SkippedLineItems != nil && n > 0 {
		SkippedLineItems.Add(float64(n))
	}
}

// IncEventDelivery records the outcome of one event delivery.
func IncEventDelivery(topic, result string) {
	if EventDeliveriesTotal != nil {
		EventDeliveriesTotal.WithLabelValues(topic, result).Inc()
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
