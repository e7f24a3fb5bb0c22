package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

const (
	pathPurchase      = "pembelian"
	pathAddresses     = "alamat"
	pathShippingQuote = "ongkir/cek"
	pathCheckout      = "checkout"
	pathCheckoutMulti = "checkout/multi"

	maxResponseBytes = 1 << 20
	defaultTimeout   = 10 * time.Second
)

// Doer executes HTTP requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config configures a marketplace Client.
type Config struct {
	BaseURL    string
	CSRFHeader string
	HTTP       Doer
	Logger     zerolog.Logger
}

// Client calls the marketplace REST API on behalf of the buyer whose
// credentials are attached to the request context.
type Client struct {
	baseURL    string
	csrfHeader string
	http       Doer
	logger     zerolog.Logger
}

// NewClient validates cfg and builds a Client. Without an explicit Doer a
// traced, single-attempt resilience client is used.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("marketplace: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("marketplace: invalid base url: %w", err)
	}
	doer := cfg.HTTP
	if doer == nil {
		doer = resilience.HTTPClient{
			Client:      NewTracedHTTPClient(defaultTimeout),
			MaxAttempts: 1,
			Target:      "marketplace",
		}
	}
	header := strings.TrimSpace(cfg.CSRFHeader)
	if header == "" {
		header = "X-XSRF-TOKEN"
	}
	return &Client{baseURL: base, csrfHeader: header, http: doer, logger: cfg.Logger}, nil
}

// NewTracedHTTPClient returns an http.Client whose transport emits client spans.
func NewTracedHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// GetPurchase loads a purchase and its line items by purchase code.
func (c *Client) GetPurchase(ctx context.Context, code string) (Purchase, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Purchase{}, errors.New("marketplace: purchase code is required")
	}
	var out Purchase
	if err := c.call(ctx, "get_purchase", http.MethodGet, pathPurchase+"/"+url.PathEscape(code), nil, &out); err != nil {
		return Purchase{}, err
	}
	if out.Code == "" {
		out.Code = code
	}
	return out, nil
}

// ListAddresses returns the buyer's saved shipping addresses.
func (c *Client) ListAddresses(ctx context.Context) ([]Address, error) {
	var out []Address
	if err := c.call(ctx, "list_addresses", http.MethodGet, pathAddresses, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// QuoteShipping requests courier options for one store. An empty option list
// is reported as ErrNoShippingOptions.
func (c *Client) QuoteShipping(ctx context.Context, req QuoteRequest) ([]QuoteOption, error) {
	var out struct {
		ShippingOptions []QuoteOption `json:"shipping_options"`
	}
	if err := c.call(ctx, "quote_shipping", http.MethodPost, pathShippingQuote, req, &out); err != nil {
		return nil, err
	}
	if len(out.ShippingOptions) == 0 {
		return nil, ErrNoShippingOptions
	}
	return out.ShippingOptions, nil
}

// Checkout submits a single-store checkout.
func (c *Client) Checkout(ctx context.Context, req SingleCheckoutRequest) (CheckoutResult, error) {
	return c.checkout(ctx, "checkout_single", pathCheckout, req)
}

// CheckoutMulti submits a multi-store checkout.
func (c *Client) CheckoutMulti(ctx context.Context, req MultiCheckoutRequest) (CheckoutResult, error) {
	return c.checkout(ctx, "checkout_multi", pathCheckoutMulti, req)
}

// Ping checks that the marketplace answers HTTP at all; any response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("marketplace: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) checkout(ctx context.Context, op, path string, body any) (CheckoutResult, error) {
	var out CheckoutResult
	if err := c.call(ctx, op, http.MethodPost, path, body, &out); err != nil {
		return CheckoutResult{}, err
	}
	if strings.TrimSpace(out.BillingCode) == "" {
		return CheckoutResult{}, ErrEmptyBillingCode
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, body, out any) (err error) {
	ctx, span := otel.Tracer("marketplace.Client").Start(ctx, "marketplace."+op)
	defer span.End()
	span.SetAttributes(attribute.String("marketplace.operation", op))

	start := time.Now()
	status := 0
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		obs.ObserveMarketplace(op, result, obs.DurationMillis(time.Since(start)))
		c.logger.Debug().Str("operation", op).Int("status", status).Dur("elapsed", time.Since(start)).Err(err).Msg("marketplace_call")
	}()

	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marketplace %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyCredentials(ctx, req)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("marketplace %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", status))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("marketplace %s: read response: %w", op, err)
	}
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Operation: op, StatusCode: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = strings.TrimSpace(env.Message)
			apiErr.FieldErrors = env.Errors
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("marketplace %s: decode response: %w", op, decodeErr)
	}
	if env.Status != nil && !bool(*env.Status) {
		return &APIError{Operation: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(env.Message), FieldErrors: env.Errors}
	}
	if out == nil || len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("marketplace %s: decode data: %w", op, err)
	}
	return nil
}

func (c *Client) applyCredentials(ctx context.Context, req *http.Request) {
	creds, ok := common.CredentialsFrom(ctx)
	if !ok {
		return
	}
	if creds.Cookie != "" {
		req.Header.Set("Cookie", creds.Cookie)
	}
	if creds.Authorization != "" {
		req.Header.Set("Authorization", creds.Authorization)
	}
	if creds.CSRFToken != "" {
		req.Header.Set(c.csrfHeader, creds.CSRFToken)
	}
}
