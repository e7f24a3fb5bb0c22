package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/marketplace"
)

const (
	lockTTL              = 15 * time.Second
	defaultPaymentMethod = "midtrans"
)

var tracer = otel.Tracer("checkout.Service")

// Marketplace is the subset of the marketplace API the checkout flow calls.
type Marketplace interface {
	GetPurchase(ctx context.Context, code string) (marketplace.Purchase, error)
	ListAddresses(ctx context.Context) ([]marketplace.Address, error)
	QuoteShipping(ctx context.Context, req marketplace.QuoteRequest) ([]marketplace.QuoteOption, error)
	Checkout(ctx context.Context, req marketplace.SingleCheckoutRequest) (marketplace.CheckoutResult, error)
	CheckoutMulti(ctx context.Context, req marketplace.MultiCheckoutRequest) (marketplace.CheckoutResult, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Marketplace   Marketplace
	Store         SessionStore
	Locker        lock.Locker
	Events        *events.Bus
	Logger        zerolog.Logger
	AdminFee      decimal.Decimal
	PaymentMethod string
	PaymentURL    func(code string) string
	TTL           time.Duration
	Now           func() time.Time
}

// Service coordinates checkout sessions: grouping, shipping quotes and submission.
type Service struct {
	market        Marketplace
	store         SessionStore
	locker        lock.Locker
	events        *events.Bus
	logger        zerolog.Logger
	adminFee      decimal.Decimal
	paymentMethod string
	paymentURL    func(string) string
	ttl           time.Duration
	now           func() time.Time
}

// Result is what every operation hands back to the transport layer: the
// session as the buyer should now see it and an optional notice.
type Result struct {
	View        *View   `json:"data,omitempty"`
	Notice      *Notice `json:"notice,omitempty"`
	BillingCode string  `json:"-"`
	PaymentURL  string  `json:"-"`
}

// NewService validates cfg and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Marketplace == nil {
		return nil, errors.New("checkout: marketplace client is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("checkout: session store is required")
	}
	if cfg.Locker == nil {
		cfg.Locker = &lock.Local{}
	}
	if cfg.AdminFee.IsNegative() {
		return nil, errors.New("checkout: admin fee must not be negative")
	}
	method := strings.TrimSpace(cfg.PaymentMethod)
	if method == "" {
		method = defaultPaymentMethod
	}
	paymentURL := cfg.PaymentURL
	if paymentURL == nil {
		paymentURL = func(code string) string { return "/pembayaran/" + url.PathEscape(code) }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		market:        cfg.Marketplace,
		store:         cfg.Store,
		locker:        cfg.Locker,
		events:        cfg.Events,
		logger:        cfg.Logger,
		adminFee:      cfg.AdminFee,
		paymentMethod: method,
		paymentURL:    paymentURL,
		ttl:           ttl,
		now:           now,
	}, nil
}

// Start loads the purchase and the buyer's addresses, groups the lines by
// store and preselects a shipping address for every group.
func (s *Service) Start(ctx context.Context, purchaseCode string) (Result, error) {
	ctx, span := tracer.Start(ctx, "checkout.Start")
	defer span.End()

	code := strings.TrimSpace(purchaseCode)
	if code == "" {
		return s.result(ctx, Session{}, infoFailure("PURCHASE_CODE_REQUIRED", http.StatusBadRequest, ErrPurchaseCode, msgPurchaseCode), nil)
	}
	span.SetAttributes(attribute.String("checkout.purchase_code", code))

	var (
		purchase  marketplace.Purchase
		addresses []marketplace.Address
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		purchase, err = s.market.GetPurchase(gctx, code)
		return err
	})
	g.Go(func() error {
		var err error
		addresses, err = s.market.ListAddresses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return s.result(ctx, Session{}, upstreamFailure("PURCHASE_LOAD_FAILED", err, msgLoadFailed), nil)
	}

	grouping := GroupLineItems(purchase.Items, s.logger)
	if grouping.Skipped > 0 {
		s.logger.Warn().Str("purchase_code", code).Int("skipped", grouping.Skipped).Msg("checkout_lines_skipped")
	}
	preselected := preselectAddress(purchase, addresses)
	for i := range grouping.Groups {
		if preselected != nil {
			id := *preselected
			grouping.Groups[i].AddressID = &id
		}
	}

	now := s.now().UTC()
	sess := Session{
		ID:           uuid.NewString(),
		PurchaseCode: code,
		Addresses:    addresses,
		Groups:       grouping.Groups,
		OfferSavings: grouping.OfferSavings,
		FromOffer:    grouping.FromOffer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return s.result(ctx, Session{}, err, nil)
	}
	span.SetAttributes(attribute.String("checkout.session_id", sess.ID), attribute.Int("checkout.stores", len(sess.Groups)))
	s.emit(ctx, events.TopicSessionStarted, sess.ID, map[string]any{
		"kode_pembelian": code,
		"stores":         len(sess.Groups),
		"skipped_lines":  grouping.Skipped,
		"from_offer":     sess.FromOffer,
	})
	return s.result(ctx, sess, nil, nil)
}

// Get returns the current state of a session.
func (s *Service) Get(ctx context.Context, id string) (Result, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return s.result(ctx, Session{}, err, nil)
	}
	return s.result(ctx, sess, nil, nil)
}

// Discard deletes a session. A session with a submission in flight is kept
// so the billing code can still be recorded on it.
func (s *Service) Discard(ctx context.Context, id string) error {
	err := s.locker.WithLock(ctx, lockKey(id), lockTTL, func(ctx context.Context) error {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if cur.Submitting {
			return infoFailure("SUBMIT_IN_PROGRESS", http.StatusConflict, ErrSubmitInProgress, msgSubmitInProgress)
		}
		return s.store.Delete(ctx, id)
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// preselectAddress picks the purchase's own address when the buyer still has
// it, else the buyer's primary address.
func preselectAddress(purchase marketplace.Purchase, addresses []marketplace.Address) *int64 {
	if purchase.AddressID != nil {
		for _, addr := range addresses {
			if addr.ID == *purchase.AddressID {
				id := addr.ID
				return &id
			}
		}
	}
	for _, addr := range addresses {
		if addr.IsPrimary {
			id := addr.ID
			return &id
		}
	}
	return nil
}

func lockKey(id string) string {
	return "checkout:lock:" + id
}

// update loads the session under its lock, applies fn and saves what fn
// returns. fn may return a failure alongside the session to save; the
// failure is reported to the caller after the save.
func (s *Service) update(ctx context.Context, id string, fn func(Session) (Session, *Failure)) (Session, error) {
	var (
		out     Session
		failure *Failure
	)
	err := s.locker.WithLock(ctx, lockKey(id), lockTTL, func(ctx context.Context) error {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		next, f := fn(cur)
		next.UpdatedAt = s.now().UTC()
		if err := s.store.Save(ctx, next); err != nil {
			return err
		}
		out, failure = next, f
		return nil
	})
	if err != nil {
		return out, classify(err)
	}
	if failure != nil {
		return out, failure
	}
	return out, nil
}

// mutable rejects edits while a submission runs or after one succeeded.
func mutable(cur Session) *Failure {
	if cur.BillingCode != "" {
		return infoFailure("ALREADY_SUBMITTED", http.StatusConflict, ErrAlreadySubmitted, msgAlreadySubmitted)
	}
	if cur.Submitting {
		return infoFailure("SUBMIT_IN_PROGRESS", http.StatusConflict, ErrSubmitInProgress, msgSubmitInProgress)
	}
	return nil
}

func (s *Service) result(ctx context.Context, sess Session, err error, success *Notice) (Result, error) {
	res := Result{Notice: success}
	if sess.ID != "" {
		v := s.view(sess)
		res.View = &v
	}
	if err == nil {
		return res, nil
	}
	f := classify(err)
	notice := f.Notice
	res.Notice = &notice
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, f.Code)
	evt := s.logger.Info()
	if f.HTTPStatus >= http.StatusInternalServerError {
		evt = s.logger.Error()
	}
	evt.Err(err).Str("code", f.Code).Str("session_id", sess.ID).Msg("checkout_operation_failed")
	return res, f
}

func (s *Service) emit(ctx context.Context, topic, sessionID string, payload any) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Emit(ctx, topic, sessionID, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Str("session_id", sessionID).Msg("checkout_event_failed")
	}
}
