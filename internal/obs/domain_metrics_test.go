package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/obs"
)

func TestDomainMetricsHelpers(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("toko", registry)

	obs.IncShippingQuote("success")
	obs.IncShippingQuote("success")
	obs.IncCheckoutSubmit("multi", "failed")
	obs.IncSkippedLineItems(0)
	obs.IncSkippedLineItems(2)
	obs.ObserveMarketplace("quote_shipping", "ok", 12)
	obs.IncEventDelivery("checkout.submitted", "delivered")

	require.Equal(t, float64(2), testutil.ToFloat64(obs.ShippingQuoteTotal.WithLabelValues("success")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.CheckoutSubmitTotal.WithLabelValues("multi", "failed")))
	require.Equal(t, float64(2), testutil.ToFloat64(obs.SkippedLineItems))
	require.Equal(t, 1, testutil.CollectAndCount(obs.MarketplaceRequestLatency))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.EventDeliveriesTotal.WithLabelValues("checkout.submitted", "delivered")))
}
