package checkout

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/marketplace"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

const (
	modeSingle = "single"
	modeMulti  = "multi"
)

// Submit sends the assembled checkout to the marketplace. One store goes to
// the single-store endpoint, several stores to the multi-store endpoint.
// The session is flagged as submitting for the duration of the call and the
// flag is cleared afterwards whatever the outcome.
func (s *Service) Submit(ctx context.Context, id string) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "checkout.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.session_id", id))

	var snapshot Session
	sess, err := s.update(ctx, id, func(cur Session) (Session, *Failure) {
		if f := mutable(cur); f != nil {
			return cur, f
		}
		if len(cur.Groups) == 0 {
			return cur, infoFailure("EMPTY_CHECKOUT", http.StatusBadRequest, ErrEmptyCheckout, msgEmptyCheckout)
		}
		if !cur.AllStoresReadyForCheckout() {
			return cur, infoFailure("CHECKOUT_NOT_READY", http.StatusBadRequest, ErrNotReady, msgNotReady)
		}
		cur.Submitting = true
		snapshot = cur
		return cur, nil
	})
	if err != nil {
		obs.IncCheckoutSubmit(modeOf(sess), "rejected")
		return s.result(ctx, sess, err, nil)
	}

	mode := modeOf(snapshot)
	span.SetAttributes(attribute.String("checkout.mode", mode), attribute.Int("checkout.stores", len(snapshot.Groups)))

	var billing string
	defer func() {
		final, releaseErr := s.update(context.WithoutCancel(ctx), id, func(cur Session) (Session, *Failure) {
			cur.Submitting = false
			if billing != "" {
				cur.BillingCode = billing
			}
			return cur, nil
		})
		if releaseErr != nil {
			s.logger.Error().Err(releaseErr).Str("session_id", id).Msg("checkout_submit_release_failed")
			return
		}
		v := s.view(final)
		res.View = &v
	}()

	snapshot.Submitting = false
	var result marketplace.CheckoutResult
	var submitErr error
	if mode == modeSingle {
		result, submitErr = s.market.Checkout(ctx, s.singleRequest(snapshot))
	} else {
		result, submitErr = s.market.CheckoutMulti(ctx, s.multiRequest(snapshot))
	}
	if submitErr != nil {
		obs.IncCheckoutSubmit(mode, "failed")
		s.emit(ctx, events.TopicCheckoutFailed, id, map[string]any{"mode": mode, "error": submitErr.Error()})
		return s.result(ctx, snapshot, checkoutFailure(submitErr), nil)
	}

	billing = result.BillingCode
	obs.IncCheckoutSubmit(mode, "ok")
	s.emit(ctx, events.TopicCheckoutSubmitted, id, map[string]any{
		"mode":           mode,
		"kode_pembelian": snapshot.PurchaseCode,
		"kode_tagihan":   billing,
		"stores":         len(snapshot.Groups),
	})
	snapshot.BillingCode = billing
	res, err = s.result(ctx, snapshot, nil, &Notice{Level: NoticeSuccess, Message: msgCheckoutSuccess})
	res.BillingCode = billing
	res.PaymentURL = s.paymentURL(billing)
	return res, err
}

func modeOf(sess Session) string {
	if len(sess.Groups) > 1 {
		return modeMulti
	}
	return modeSingle
}

func (s *Service) singleRequest(sess Session) marketplace.SingleCheckoutRequest {
	g := sess.Groups[0]
	name, cost := shippingSubmission(g)
	return marketplace.SingleCheckoutRequest{
		AddressID:      *g.AddressID,
		ShippingOption: name,
		ShippingCost:   cost,
		BuyerNote:      g.Note,
		PaymentMethod:  s.paymentMethod,
		FromOffer:      sess.FromOffer,
	}
}

func (s *Service) multiRequest(sess Session) marketplace.MultiCheckoutRequest {
	stores := make([]marketplace.StoreCheckout, 0, len(sess.Groups))
	for _, g := range sess.Groups {
		name, cost := shippingSubmission(g)
		stores = append(stores, marketplace.StoreCheckout{
			StoreID:        g.StoreID,
			AddressID:      *g.AddressID,
			ShippingOption: name,
			ShippingCost:   cost,
			BuyerNote:      g.Note,
		})
	}
	return marketplace.MultiCheckoutRequest{
		Stores:        stores,
		PaymentMethod: s.paymentMethod,
		FromOffer:     sess.FromOffer,
	}
}

// shippingSubmission returns the service identifier and cost sent for a
// ready group.
func shippingSubmission(g StoreGroup) (string, decimal.Decimal) {
	if opt, ok := g.SelectedOption(); ok {
		return opt.SubmissionName(), g.ShippingCost
	}
	return *g.SelectedShipping, g.ShippingCost
}
