package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/marketplace"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// StoreView is a store group plus its readiness.
type StoreView struct {
	StoreGroup
	Ready bool `json:"ready"`
}

// Display carries preformatted rupiah strings for the storefront.
type Display struct {
	Subtotal     string `json:"subtotal"`
	Shipping     string `json:"shipping"`
	AdminFee     string `json:"admin_fee"`
	Total        string `json:"total"`
	OfferSavings string `json:"offer_savings"`
}

// View is the session as rendered to the storefront, totals included.
type View struct {
	ID           string                `json:"id"`
	PurchaseCode string                `json:"kode_pembelian"`
	Addresses    []marketplace.Address `json:"addresses"`
	Stores       []StoreView           `json:"stores"`
	Totals       pricing.Summary       `json:"totals"`
	OfferSavings decimal.Decimal       `json:"offer_savings"`
	FromOffer    bool                  `json:"from_offer"`
	Display      Display               `json:"display"`
	Ready        bool                  `json:"ready"`
	Submitting   bool                  `json:"submitting"`
	BillingCode  string                `json:"kode_tagihan,omitempty"`
	ExpiresAt    time.Time             `json:"expires_at"`
}

// Totals recomputes the checkout totals from the current groups.
func (s Session) Totals(adminFee decimal.Decimal) pricing.Summary {
	subtotals := make([]pricing.Money, 0, len(s.Groups))
	shipping := make([]pricing.Money, 0, len(s.Groups))
	for _, g := range s.Groups {
		subtotals = append(subtotals, g.Subtotal)
		shipping = append(shipping, g.ShippingCost)
	}
	return pricing.Compute(subtotals, shipping, adminFee)
}

func (s *Service) view(sess Session) View {
	stores := make([]StoreView, 0, len(sess.Groups))
	for _, g := range sess.Groups {
		if g.ShippingOptions == nil {
			g.ShippingOptions = []ShippingOption{}
		}
		stores = append(stores, StoreView{StoreGroup: g, Ready: g.Ready()})
	}
	totals := sess.Totals(s.adminFee)
	addresses := sess.Addresses
	if addresses == nil {
		addresses = []marketplace.Address{}
	}
	return View{
		ID:           sess.ID,
		PurchaseCode: sess.PurchaseCode,
		Addresses:    addresses,
		Stores:       stores,
		Totals:       totals,
		OfferSavings: sess.OfferSavings,
		FromOffer:    sess.FromOffer,
		Display: Display{
			Subtotal:     pricing.FormatRupiah(totals.Subtotal),
			Shipping:     pricing.FormatRupiah(totals.Shipping),
			AdminFee:     pricing.FormatRupiah(totals.AdminFee),
			Total:        pricing.FormatRupiah(totals.Total),
			OfferSavings: pricing.FormatRupiah(sess.OfferSavings),
		},
		Ready:       len(sess.Groups) > 0 && sess.AllStoresReadyForCheckout(),
		Submitting:  sess.Submitting,
		BillingCode: sess.BillingCode,
		ExpiresAt:   sess.UpdatedAt.Add(s.ttl),
	}
}
