package checkout_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/checkout"
)

func sampleSession(id string) checkout.Session {
	service := "REG"
	return checkout.Session{
		ID:           id,
		PurchaseCode: "PBL-001",
		Groups: []checkout.StoreGroup{{
			StoreID:          1,
			StoreName:        "Toko A",
			Subtotal:         rp(80000),
			AddressID:        i64(10),
			ShippingOptions:  []checkout.ShippingOption{{Key: "REG", Service: "REG", Cost: rp(15000)}},
			SelectedShipping: &service,
			ShippingCost:     rp(15000),
			QuoteGeneration:  3,
		}},
		OfferSavings: rp(0),
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := checkout.NewMemoryStore(time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession("s1")))
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, uint64(3), got.Groups[0].QuoteGeneration)
	require.True(t, got.Groups[0].Subtotal.Equal(rp(80000)))

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, checkout.ErrSessionNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := checkout.NewMemoryStore(time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleSession("s1")))

	first, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	first.Groups[0].StoreName = "changed"

	second, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "Toko A", second.Groups[0].StoreName)

	require.NoError(t, store.Delete(ctx, "s1"))
	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, checkout.ErrSessionNotFound)
}

func TestRedisStoreRoundTripAndTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := checkout.NewRedisStore(client, 10*time.Minute)
	ctx := context.Background()

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, checkout.ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, sampleSession("s1")))
	require.Equal(t, 10*time.Minute, mr.TTL("checkout:session:s1"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "REG", *got.Groups[0].SelectedShipping)
	require.True(t, got.Groups[0].ShippingCost.Equal(rp(15000)))

	mr.FastForward(11 * time.Minute)
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, checkout.ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, sampleSession("s2")))
	require.NoError(t, store.Delete(ctx, "s2"))
	require.False(t, mr.Exists("checkout:session:s2"))
}
