package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/marketplace"
)

// NoticeLevel classifies a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeError   NoticeLevel = "error"
	NoticeSuccess NoticeLevel = "success"
)

// Notice is a transient message the storefront shows as a toast.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Item is one purchased line placed in a store group.
type Item struct {
	LineID      int64           `json:"id_detail_pembelian"`
	ProductID   int64           `json:"id_barang"`
	ProductName string          `json:"nama_barang"`
	Quantity    int             `json:"jumlah"`
	UnitPrice   decimal.Decimal `json:"harga_satuan"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	FromOffer   bool            `json:"from_offer"`
	Savings     decimal.Decimal `json:"savings"`
}

// ShippingOption is one courier service quoted for a store group. Key is
// unique within one quote; service codes repeat across couriers.
type ShippingOption struct {
	Key         string          `json:"key"`
	Service     string          `json:"service"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	ETD         string          `json:"etd"`
	CourierName string          `json:"courier_name"`
	CourierCode string          `json:"courier_code"`
	ServiceName string          `json:"service_name"`
}

// optionKey identifies a quoted service as courier:service, or the bare
// service code when the backend sent no courier.
func optionKey(courierCode, service string) string {
	if courierCode == "" {
		return service
	}
	return courierCode + ":" + service
}

// SubmissionName is the shipping identifier sent at checkout: the full
// service name when the backend supplied one, else the bare code.
func (o ShippingOption) SubmissionName() string {
	if o.ServiceName != "" {
		return o.ServiceName
	}
	return o.Service
}

// StoreGroup aggregates the lines of one store and the buyer's shipping
// choices for it.
type StoreGroup struct {
	StoreID          int64                     `json:"id_toko"`
	StoreName        string                    `json:"nama_toko"`
	Origin           *marketplace.StoreAddress `json:"alamat_toko,omitempty"`
	Items            []Item                    `json:"items"`
	Subtotal         decimal.Decimal           `json:"subtotal"`
	AddressID        *int64                    `json:"id_alamat"`
	ShippingOptions  []ShippingOption          `json:"shipping_options"`
	// SelectedShipping holds the Key of the chosen option.
	SelectedShipping *string                   `json:"selected_shipping"`
	ShippingCost     decimal.Decimal           `json:"shipping_cost"`
	Note             string                    `json:"note"`
	Loading          bool                      `json:"loading"`
	// QuoteGeneration increases on every quote request and address change;
	// a quote response is applied only if the generation still matches.
	QuoteGeneration uint64 `json:"quote_generation"`
}

// Ready reports whether the group can be submitted.
func (g StoreGroup) Ready() bool {
	return g.AddressID != nil && g.SelectedShipping != nil && !g.Loading
}

// SelectedOption returns the chosen shipping option.
func (g StoreGroup) SelectedOption() (ShippingOption, bool) {
	if g.SelectedShipping == nil {
		return ShippingOption{}, false
	}
	for _, opt := range g.ShippingOptions {
		if opt.Key == *g.SelectedShipping {
			return opt, true
		}
	}
	return ShippingOption{}, false
}

// FindOption resolves a buyer's choice. ref is an option key; a bare service
// code is accepted when exactly one quoted option carries it.
func (g StoreGroup) FindOption(ref string) (ShippingOption, bool) {
	var (
		match   ShippingOption
		matches int
	)
	for _, opt := range g.ShippingOptions {
		if opt.Key == ref {
			return opt, true
		}
		if opt.Service == ref {
			match = opt
			matches++
		}
	}
	return match, matches == 1
}

func (g StoreGroup) clearShipping() StoreGroup {
	g.ShippingOptions = []ShippingOption{}
	g.SelectedShipping = nil
	g.ShippingCost = decimal.Zero
	return g
}

func (g StoreGroup) withOptions(options []ShippingOption) StoreGroup {
	g.ShippingOptions = options
	g.SelectedShipping = nil
	g.ShippingCost = decimal.Zero
	if len(options) > 0 {
		key := options[0].Key
		g.SelectedShipping = &key
		g.ShippingCost = options[0].Cost
	}
	return g
}

// Session is the server-side state of one checkout visit.
type Session struct {
	ID           string                `json:"id"`
	PurchaseCode string                `json:"kode_pembelian"`
	Addresses    []marketplace.Address `json:"addresses"`
	Groups       []StoreGroup          `json:"stores"`
	OfferSavings decimal.Decimal       `json:"offer_savings"`
	FromOffer    bool                  `json:"from_offer"`
	Submitting   bool                  `json:"submitting"`
	BillingCode  string                `json:"kode_tagihan,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// AllStoresReadyForCheckout reports whether every group has an address, a
// shipping selection and no quote in flight.
func (s Session) AllStoresReadyForCheckout() bool {
	for _, g := range s.Groups {
		if !g.Ready() {
			return false
		}
	}
	return true
}

// Address resolves a buyer address from the list loaded at session start.
func (s Session) Address(id int64) (marketplace.Address, bool) {
	for _, addr := range s.Addresses {
		if addr.ID == id {
			return addr, true
		}
	}
	return marketplace.Address{}, false
}

// group returns a copy of the group at index.
func (s Session) group(index int) (StoreGroup, error) {
	if index < 0 || index >= len(s.Groups) {
		return StoreGroup{}, ErrStoreIndex
	}
	return s.Groups[index], nil
}

// withGroup returns a copy of s whose group at index is replaced by fn's
// result. The original session and its group slice are left untouched.
func (s Session) withGroup(index int, fn func(StoreGroup) StoreGroup) (Session, error) {
	current, err := s.group(index)
	if err != nil {
		return s, err
	}
	groups := make([]StoreGroup, len(s.Groups))
	copy(groups, s.Groups)
	groups[index] = fn(current)
	s.Groups = groups
	return s, nil
}
