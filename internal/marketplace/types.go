package marketplace

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Purchase is a pending purchase record as returned by the marketplace.
type Purchase struct {
	Code      string     `json:"kode_pembelian"`
	Items     []LineItem `json:"detail_pembelian"`
	AddressID *int64     `json:"id_alamat,omitempty"`
}

// LineItem is one purchased product line. Store and product data may be
// partially populated depending on which relations the backend eager-loaded.
type LineItem struct {
	ID          int64               `json:"id_detail_pembelian"`
	ProductID   int64               `json:"id_barang"`
	Quantity    int                 `json:"jumlah"`
	UnitPrice   decimal.Decimal     `json:"harga_satuan"`
	Subtotal    decimal.Decimal     `json:"subtotal"`
	IsFromOffer bool                `json:"is_from_offer"`
	OfferID     *int64              `json:"id_penawaran,omitempty"`
	Savings     decimal.NullDecimal `json:"savings"`
	StoreID     *int64              `json:"id_toko,omitempty"`
	Store       *Store              `json:"toko,omitempty"`
	Product     *Product            `json:"barang,omitempty"`
}

// Product is the catalog product referenced by a line item.
type Product struct {
	ID      int64               `json:"id_barang"`
	Name    string              `json:"nama_barang"`
	Price   decimal.NullDecimal `json:"harga"`
	StoreID *int64              `json:"id_toko,omitempty"`
	Store   *Store              `json:"toko,omitempty"`
}

// Store is a seller storefront.
type Store struct {
	ID        int64          `json:"id_toko"`
	Name      string         `json:"nama_toko"`
	Addresses []StoreAddress `json:"alamat,omitempty"`
}

// StoreAddress is a pickup/origin address registered by a seller.
type StoreAddress struct {
	ID          int64      `json:"id_alamat_toko"`
	FullAddress string     `json:"alamat_lengkap"`
	CityID      FlexString `json:"id_kota"`
	IsPrimary   bool       `json:"is_primary"`
}

// Address is a buyer shipping address.
type Address struct {
	ID            int64      `json:"id_alamat"`
	Label         string     `json:"label,omitempty"`
	RecipientName string     `json:"nama_penerima"`
	Phone         string     `json:"no_telepon"`
	FullAddress   string     `json:"alamat_lengkap"`
	ProvinceID    FlexString `json:"id_provinsi"`
	CityID        FlexString `json:"id_kota"`
	DistrictID    FlexString `json:"id_kecamatan"`
	PostalCode    FlexString `json:"kode_pos"`
	IsPrimary     bool       `json:"is_primary"`
}

// QuoteProduct is one product line in a shipping quote request.
type QuoteProduct struct {
	ProductID int64 `json:"id_barang"`
	Quantity  int   `json:"quantity"`
}

// QuoteRequest asks for courier options from one store to one buyer address.
type QuoteRequest struct {
	StoreID   int64          `json:"id_toko"`
	AddressID int64          `json:"id_alamat"`
	Products  []QuoteProduct `json:"products"`
}

// QuoteOption is a courier service quoted by the marketplace.
type QuoteOption struct {
	Service     string          `json:"service"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	ETD         string          `json:"etd"`
	CourierName string          `json:"courier_name"`
	CourierCode string          `json:"courier_code"`
	ServiceName string          `json:"service_name"`
}

// SingleCheckoutRequest creates a billing record for a one-store purchase.
type SingleCheckoutRequest struct {
	AddressID      int64           `json:"id_alamat"`
	ShippingOption string          `json:"opsi_pengiriman"`
	ShippingCost   decimal.Decimal `json:"biaya_kirim"`
	BuyerNote      string          `json:"catatan_pembeli"`
	PaymentMethod  string          `json:"metode_pembayaran"`
	FromOffer      bool            `json:"from_offer"`
}

// StoreCheckout is the per-store part of a multi-store checkout.
type StoreCheckout struct {
	StoreID        int64           `json:"id_toko"`
	AddressID      int64           `json:"id_alamat"`
	ShippingOption string          `json:"opsi_pengiriman"`
	ShippingCost   decimal.Decimal `json:"biaya_kirim"`
	BuyerNote      string          `json:"catatan_pembeli"`
}

// MultiCheckoutRequest creates one billing record covering several stores.
type MultiCheckoutRequest struct {
	Stores        []StoreCheckout `json:"stores"`
	PaymentMethod string          `json:"metode_pembayaran"`
	FromOffer     bool            `json:"from_offer"`
}

// CheckoutResult carries the billing code used by the payment page.
type CheckoutResult struct {
	BillingCode string `json:"kode_tagihan"`
}

// FlexString decodes JSON strings and numbers into a string.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// apiStatus accepts "success"/"ok" strings, booleans and 2xx numbers.
type apiStatus bool

func (s *apiStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = false
	case data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = apiStatus(v == "success" || v == "ok" || v == "OK")
	case bytes.Equal(data, []byte("true")):
		*s = true
	case bytes.Equal(data, []byte("false")):
		*s = false
	default:
		code, err := strconv.Atoi(string(data))
		if err != nil {
			return err
		}
		*s = apiStatus(code >= 200 && code < 300)
	}
	return nil
}

type envelope struct {
	Status  *apiStatus      `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  fieldErrors     `json:"errors"`
}

// fieldErrors decodes Laravel-style validation maps where each value is a
// string or a list of strings.
type fieldErrors map[string][]string

func (f *fieldErrors) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		*f = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(fieldErrors, len(raw))
	for field, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			out[field] = list
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			out[field] = []string{single}
		}
	}
	*f = out
	return nil
}
