package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

func rp(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestComputeTwoStores(t *testing.T) {
	sum := pricing.Compute(
		[]pricing.Money{rp(50000), rp(30000)},
		[]pricing.Money{rp(15000), rp(10000)},
		rp(1000),
	)
	require.True(t, sum.Subtotal.Equal(rp(80000)))
	require.True(t, sum.Shipping.Equal(rp(25000)))
	require.True(t, sum.AdminFee.Equal(rp(1000)))
	require.True(t, sum.Total.Equal(rp(106000)))
}

func TestComputeWithoutShipping(t *testing.T) {
	sum := pricing.Compute([]pricing.Money{rp(20000)}, nil, rp(1000))
	require.True(t, sum.Shipping.IsZero())
	require.True(t, sum.Total.Equal(rp(21000)))
}

func TestComputeIgnoresNegativeAdminFee(t *testing.T) {
	sum := pricing.Compute([]pricing.Money{rp(5000)}, nil, rp(-10))
	require.True(t, sum.AdminFee.IsZero())
	require.True(t, sum.Total.Equal(rp(5000)))
}

func TestLineSavings(t *testing.T) {
	catalog := decimal.NewNullDecimal(rp(100000))

	got, ok := pricing.LineSavings(decimal.NullDecimal{}, catalog, rp(80000), 2)
	require.True(t, ok)
	require.True(t, got.Equal(rp(40000)))

	got, ok = pricing.LineSavings(decimal.NewNullDecimal(rp(12500)), catalog, rp(80000), 2)
	require.True(t, ok)
	require.True(t, got.Equal(rp(12500)), "explicit savings wins")

	_, ok = pricing.LineSavings(decimal.NullDecimal{}, catalog, rp(120000), 1)
	require.False(t, ok, "price above catalog is not a saving")

	_, ok = pricing.LineSavings(decimal.NullDecimal{}, decimal.NullDecimal{}, rp(80000), 1)
	require.False(t, ok)

	_, ok = pricing.LineSavings(decimal.NewNullDecimal(decimal.Zero), catalog, rp(80000), 1)
	require.False(t, ok)
}

func TestFormatRupiah(t *testing.T) {
	require.Equal(t, "Rp 1.250.000", pricing.FormatRupiah(rp(1250000)))
	require.Equal(t, "Rp 0", pricing.FormatRupiah(decimal.Zero))
	require.Equal(t, "Rp 1.000", pricing.FormatRupiah(decimal.RequireFromString("999.6")))
}
