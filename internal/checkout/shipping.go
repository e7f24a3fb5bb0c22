package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/marketplace"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

// MaxNoteLength bounds the buyer note per store, in characters.
const MaxNoteLength = 500

// CalculateShipping requests courier options for the group's selected address.
// The group is marked loading with its previous quote cleared before the
// request goes out. Only the response to the most recent request for the
// group is applied; an older response arriving later is dropped.
func (s *Service) CalculateShipping(ctx context.Context, id string, index int) (Result, error) {
	ctx, span := tracer.Start(ctx, "checkout.CalculateShipping")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.session_id", id), attribute.Int("checkout.store_index", index))

	var (
		req        marketplace.QuoteRequest
		generation uint64
	)
	sess, err := s.update(ctx, id, func(cur Session) (Session, *Failure) {
		if f := mutable(cur); f != nil {
			return cur, f
		}
		g, err := cur.group(index)
		if err != nil {
			return cur, classify(err)
		}
		if g.AddressID == nil {
			return cur, infoFailure("ADDRESS_REQUIRED", http.StatusBadRequest, ErrAddressRequired, msgAddressRequired)
		}
		addr, ok := cur.Address(*g.AddressID)
		next, _ := cur.withGroup(index, func(g StoreGroup) StoreGroup {
			g = g.clearShipping()
			g.Loading = ok
			g.QuoteGeneration++
			return g
		})
		if !ok {
			return next, errorFailure("ADDRESS_NOT_FOUND", http.StatusUnprocessableEntity, ErrAddressUnknown, msgAddressUnknown)
		}
		generation = next.Groups[index].QuoteGeneration
		req = quoteRequest(g, addr.ID)
		return next, nil
	})
	if err != nil {
		obs.IncShippingQuote("rejected")
		return s.result(ctx, sess, err, nil)
	}

	options, quoteErr := s.market.QuoteShipping(ctx, req)

	stale := false
	sess, err = s.update(context.WithoutCancel(ctx), id, func(cur Session) (Session, *Failure) {
		g, err := cur.group(index)
		if err != nil {
			return cur, classify(err)
		}
		if g.QuoteGeneration != generation {
			stale = true
			return cur, nil
		}
		if quoteErr != nil {
			next, _ := cur.withGroup(index, func(g StoreGroup) StoreGroup {
				g = g.clearShipping()
				g.Loading = false
				return g
			})
			return next, quoteFailure(quoteErr)
		}
		next, _ := cur.withGroup(index, func(g StoreGroup) StoreGroup {
			g = g.withOptions(toShippingOptions(options))
			g.Loading = false
			return g
		})
		return next, nil
	})

	switch {
	case stale:
		obs.IncShippingQuote("superseded")
		s.logger.Debug().Str("session_id", id).Int("store_index", index).Uint64("generation", generation).Msg("shipping_quote_superseded")
	case err != nil:
		obs.IncShippingQuote("failed")
	default:
		obs.IncShippingQuote("ok")
		s.emit(ctx, events.TopicShippingQuoted, id, map[string]any{
			"store_index": index,
			"id_toko":     req.StoreID,
			"options":     len(options),
		})
	}
	return s.result(ctx, sess, err, nil)
}

// SelectAddress sets the group's shipping address. Any quote for the group
// is cleared, including one still in flight.
func (s *Service) SelectAddress(ctx context.Context, id string, index int, addressID int64) (Result, error) {
	sess, err := s.update(ctx, id, func(cur Session) (Session, *Failure) {
		if f := mutable(cur); f != nil {
			return cur, f
		}
		if _, err := cur.group(index); err != nil {
			return cur, classify(err)
		}
		if _, ok := cur.Address(addressID); !ok {
			return cur, infoFailure("ADDRESS_NOT_FOUND", http.StatusUnprocessableEntity, ErrAddressUnknown, msgAddressUnknown)
		}
		next, _ := cur.withGroup(index, func(g StoreGroup) StoreGroup {
			selected := addressID
			g.AddressID = &selected
			g = g.clearShipping()
			g.Loading = false
			g.QuoteGeneration++
			return g
		})
		return next, nil
	})
	return s.result(ctx, sess, err, nil)
}

// SelectShipping overrides the automatically selected courier service. ref is
// the option key returned with the quote.
func (s *Service) SelectShipping(ctx context.Context, id string, index int, ref string) (Result, error) {
	sess, err := s.update(ctx, id, func(cur Session) (Session, *Failure) {
		if f := mutable(cur); f != nil {
			return cur, f
		}
		g, err := cur.group(index)
		if err != nil {
			return cur, classify(err)
		}
		chosen, ok := g.FindOption(ref)
		if !ok || g.Loading {
			return cur, infoFailure("SHIPPING_NOT_FOUND", http.StatusUnprocessableEntity, ErrShippingUnknown, msgShippingUnknown)
		}
		next, _ := cur.withGroup(index, func(g StoreGroup) StoreGroup {
			key := chosen.Key
			g.SelectedShipping = &key
			g.ShippingCost = chosen.Cost
			return g
		})
		return next, nil
	})
	return s.result(ctx, sess, err, nil)
}

// SetNote stores the buyer's note for one store.
func (s *Service) SetNote(ctx context.Context, id string, index int, note string) (Result, error) {
	sess, err := s.update(ctx, id, func(cur Session) (Session, *Failure) {
		if f := mutable(cur); f != nil {
			return cur, f
		}
		if _, err := cur.group(index); err != nil {
			return cur, classify(err)
		}
		if utf8.RuneCountInString(note) > MaxNoteLength {
			return cur, infoFailure("NOTE_TOO_LONG", http.StatusBadRequest, ErrNoteTooLong, msgNoteTooLong)
		}
		next, _ := cur.withGroup(index, func(g StoreGroup) StoreGroup {
			g.Note = note
			return g
		})
		return next, nil
	})
	return s.result(ctx, sess, err, nil)
}

func quoteRequest(g StoreGroup, addressID int64) marketplace.QuoteRequest {
	products := make([]marketplace.QuoteProduct, 0, len(g.Items))
	for _, item := range g.Items {
		products = append(products, marketplace.QuoteProduct{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return marketplace.QuoteRequest{StoreID: g.StoreID, AddressID: addressID, Products: products}
}

// toShippingOptions keeps the backend order, which is cheapest first. A key
// seen twice in one quote gets its position appended.
func toShippingOptions(quoted []marketplace.QuoteOption) []ShippingOption {
	out := make([]ShippingOption, 0, len(quoted))
	seen := make(map[string]bool, len(quoted))
	for i, q := range quoted {
		key := optionKey(q.CourierCode, q.Service)
		if seen[key] {
			key = fmt.Sprintf("%s#%d", key, i)
		}
		seen[key] = true
		out = append(out, ShippingOption{
			Key:         key,
			Service:     q.Service,
			Description: q.Description,
			Cost:        q.Cost,
			ETD:         q.ETD,
			CourierName: q.CourierName,
			CourierCode: q.CourierCode,
			ServiceName: q.ServiceName,
		})
	}
	return out
}

func quoteFailure(err error) *Failure {
	if errors.Is(err, marketplace.ErrNoShippingOptions) {
		return errorFailure("NO_SHIPPING_OPTIONS", http.StatusUnprocessableEntity, err, msgNoOptions)
	}
	return upstreamFailure("SHIPPING_QUOTE_FAILED", err, msgQuoteFailed)
}
