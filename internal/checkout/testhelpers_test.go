package checkout_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/marketplace"
)

type quoteReply struct {
	options []marketplace.QuoteOption
	err     error
}

// fakeMarketplace records calls and answers from canned data. When quoteGate
// is set each quote call waits for a reply on the channel it publishes.
type fakeMarketplace struct {
	mu sync.Mutex

	purchase    marketplace.Purchase
	purchaseErr error
	addresses   []marketplace.Address
	options     []marketplace.QuoteOption
	quoteErr    error
	quoteGate   chan chan quoteReply
	result      marketplace.CheckoutResult
	checkoutErr error
	checkoutGo  chan struct{}

	quoteCalls  []marketplace.QuoteRequest
	singleCalls []marketplace.SingleCheckoutRequest
	multiCalls  []marketplace.MultiCheckoutRequest
}

func (f *fakeMarketplace) GetPurchase(_ context.Context, code string) (marketplace.Purchase, error) {
	if f.purchaseErr != nil {
		return marketplace.Purchase{}, f.purchaseErr
	}
	p := f.purchase
	p.Code = code
	return p, nil
}

func (f *fakeMarketplace) ListAddresses(context.Context) ([]marketplace.Address, error) {
	return f.addresses, nil
}

func (f *fakeMarketplace) QuoteShipping(_ context.Context, req marketplace.QuoteRequest) ([]marketplace.QuoteOption, error) {
	f.mu.Lock()
	f.quoteCalls = append(f.quoteCalls, req)
	gate := f.quoteGate
	f.mu.Unlock()
	if gate != nil {
		reply := make(chan quoteReply)
		gate <- reply
		r := <-reply
		return r.options, r.err
	}
	return f.options, f.quoteErr
}

func (f *fakeMarketplace) Checkout(_ context.Context, req marketplace.SingleCheckoutRequest) (marketplace.CheckoutResult, error) {
	f.mu.Lock()
	f.singleCalls = append(f.singleCalls, req)
	gate := f.checkoutGo
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.result, f.checkoutErr
}

func (f *fakeMarketplace) CheckoutMulti(_ context.Context, req marketplace.MultiCheckoutRequest) (marketplace.CheckoutResult, error) {
	f.mu.Lock()
	f.multiCalls = append(f.multiCalls, req)
	f.mu.Unlock()
	return f.result, f.checkoutErr
}

func (f *fakeMarketplace) calls() (quotes, single, multi int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.quoteCalls), len(f.singleCalls), len(f.multiCalls)
}

func twoStorePurchase() marketplace.Purchase {
	storeA := &marketplace.Store{ID: 1, Name: "Toko A"}
	storeB := &marketplace.Store{ID: 2, Name: "Toko B"}
	return marketplace.Purchase{
		AddressID: i64(11),
		Items: []marketplace.LineItem{
			{ID: 1, ProductID: 100, Quantity: 1, UnitPrice: rp(50000), Subtotal: rp(50000), Store: storeA, Product: &marketplace.Product{ID: 100, Name: "Kemeja"}},
			{ID: 2, ProductID: 101, Quantity: 1, UnitPrice: rp(30000), Subtotal: rp(30000), Store: storeA, Product: &marketplace.Product{ID: 101, Name: "Topi"}},
			{ID: 3, ProductID: 200, Quantity: 2, UnitPrice: rp(10000), Subtotal: rp(20000), Store: storeB, Product: &marketplace.Product{ID: 200, Name: "Kaos Kaki"}},
		},
	}
}

func oneStorePurchase() marketplace.Purchase {
	p := twoStorePurchase()
	p.Items = p.Items[:2]
	return p
}

func buyerAddresses() []marketplace.Address {
	return []marketplace.Address{
		{ID: 10, RecipientName: "Ani", FullAddress: "Jl. Mawar 1", IsPrimary: true},
		{ID: 11, RecipientName: "Ani", FullAddress: "Jl. Melati 2"},
	}
}

func quotedOptions() []marketplace.QuoteOption {
	return []marketplace.QuoteOption{
		{Service: "REG", Description: "Reguler", Cost: rp(15000), ETD: "2-3", CourierName: "JNE", CourierCode: "jne", ServiceName: "JNE REG"},
		{Service: "YES", Description: "Yakin Esok Sampai", Cost: rp(30000), ETD: "1", CourierName: "JNE", CourierCode: "jne", ServiceName: "JNE YES"},
	}
}

func newFake(p marketplace.Purchase) *fakeMarketplace {
	return &fakeMarketplace{
		purchase:  p,
		addresses: buyerAddresses(),
		options:   quotedOptions(),
		result:    marketplace.CheckoutResult{BillingCode: "TGH-001"},
	}
}

func newService(t *testing.T, market checkout.Marketplace) *checkout.Service {
	t.Helper()
	svc, err := checkout.NewService(checkout.ServiceConfig{
		Marketplace: market,
		Store:       checkout.NewMemoryStore(time.Hour),
		Logger:      zerolog.Nop(),
		AdminFee:    rp(1000),
	})
	require.NoError(t, err)
	return svc
}

func startSession(t *testing.T, svc *checkout.Service) *checkout.View {
	t.Helper()
	res, err := svc.Start(context.Background(), "PBL-001")
	require.NoError(t, err)
	require.NotNil(t, res.View)
	return res.View
}

func decimal100k() decimal.NullDecimal {
	return decimal.NewNullDecimal(rp(100000))
}
