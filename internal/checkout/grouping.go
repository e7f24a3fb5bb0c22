package checkout

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/marketplace"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Grouping is the result of partitioning purchase lines by store.
type Grouping struct {
	Groups       []StoreGroup
	OfferSavings decimal.Decimal
	FromOffer    bool
	Skipped      int
}

type storeIdentity struct {
	ID     int64
	Name   string
	Origin *marketplace.StoreAddress
}

// storeResolver yields a store identity for a line when it has enough data.
type storeResolver func(marketplace.LineItem) (storeIdentity, bool)

// storeResolvers are tried in order; the last one always matches.
var storeResolvers = []storeResolver{
	lineItemStore,
	productStore,
	rawStoreID,
}

func resolveStore(item marketplace.LineItem) storeIdentity {
	for _, resolve := range storeResolvers {
		if id, ok := resolve(item); ok {
			return id
		}
	}
	return storeIdentity{Name: fallbackStoreName(0)}
}

func lineItemStore(item marketplace.LineItem) (storeIdentity, bool) {
	return fromStoreRecord(item.Store)
}

func productStore(item marketplace.LineItem) (storeIdentity, bool) {
	if item.Product == nil {
		return storeIdentity{}, false
	}
	return fromStoreRecord(item.Product.Store)
}

func rawStoreID(item marketplace.LineItem) (storeIdentity, bool) {
	var id int64
	switch {
	case item.StoreID != nil:
		id = *item.StoreID
	case item.Product != nil && item.Product.StoreID != nil:
		id = *item.Product.StoreID
	}
	return storeIdentity{ID: id, Name: fallbackStoreName(id)}, true
}

func fromStoreRecord(store *marketplace.Store) (storeIdentity, bool) {
	if store == nil || (store.ID == 0 && store.Name == "") {
		return storeIdentity{}, false
	}
	name := store.Name
	if name == "" {
		name = fallbackStoreName(store.ID)
	}
	return storeIdentity{ID: store.ID, Name: name, Origin: originAddress(store.Addresses)}, true
}

// originAddress prefers the address flagged primary, else the first one.
func originAddress(addresses []marketplace.StoreAddress) *marketplace.StoreAddress {
	if len(addresses) == 0 {
		return nil
	}
	for i := range addresses {
		if addresses[i].IsPrimary {
			addr := addresses[i]
			return &addr
		}
	}
	addr := addresses[0]
	return &addr
}

func fallbackStoreName(id int64) string {
	return fmt.Sprintf("Store %d", id)
}

// GroupLineItems partitions purchase lines into store groups in first-seen
// store order. Lines without a product reference are skipped and logged.
func GroupLineItems(items []marketplace.LineItem, logger zerolog.Logger) Grouping {
	out := Grouping{OfferSavings: decimal.Zero}
	index := make(map[int64]int)

	for _, line := range items {
		if line.Product == nil {
			out.Skipped++
			logger.Warn().
				Int64("line_id", line.ID).
				Int64("product_id", line.ProductID).
				Msg("checkout_line_item_without_product")
			continue
		}

		item := Item{
			LineID:      line.ID,
			ProductID:   line.ProductID,
			ProductName: line.Product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Subtotal,
			Savings:     decimal.Zero,
		}
		if item.ProductID == 0 {
			item.ProductID = line.Product.ID
		}
		if isOfferDerived(line) {
			if savings, ok := pricing.LineSavings(line.Savings, line.Product.Price, line.UnitPrice, line.Quantity); ok {
				item.FromOffer = true
				item.Savings = savings
				out.FromOffer = true
				out.OfferSavings = out.OfferSavings.Add(savings)
			}
		}

		store := resolveStore(line)
		pos, seen := index[store.ID]
		if !seen {
			pos = len(out.Groups)
			index[store.ID] = pos
			out.Groups = append(out.Groups, StoreGroup{
				StoreID:      store.ID,
				StoreName:    store.Name,
				Origin:       store.Origin,
				Subtotal:     decimal.Zero,
				ShippingCost: decimal.Zero,
			})
		}
		group := &out.Groups[pos]
		group.Items = append(group.Items, item)
		group.Subtotal = group.Subtotal.Add(item.Subtotal)
	}

	obs.IncSkippedLineItems(out.Skipped)
	return out
}

func isOfferDerived(line marketplace.LineItem) bool {
	return line.IsFromOffer || line.OfferID != nil
}
