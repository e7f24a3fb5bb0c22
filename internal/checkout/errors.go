package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/marketplace"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

var (
	ErrSessionNotFound  = errors.New("checkout: session not found")
	ErrStoreIndex       = errors.New("checkout: store index out of range")
	ErrAddressRequired  = errors.New("checkout: store has no shipping address")
	ErrAddressUnknown   = errors.New("checkout: address not in buyer address list")
	ErrShippingUnknown  = errors.New("checkout: shipping service not among quoted options")
	ErrNotReady         = errors.New("checkout: not every store is ready")
	ErrEmptyCheckout    = errors.New("checkout: no store groups to submit")
	ErrSubmitInProgress = errors.New("checkout: submission already in progress")
	ErrAlreadySubmitted = errors.New("checkout: session already submitted")
	ErrPurchaseCode     = errors.New("checkout: purchase code is required")
	ErrNoteTooLong      = errors.New("checkout: note exceeds maximum length")
)

const (
	msgAddressRequired  = "Pilih alamat pengiriman terlebih dahulu"
	msgAddressUnknown   = "Alamat pengiriman tidak ditemukan"
	msgShippingUnknown  = "Opsi pengiriman tidak tersedia untuk toko ini"
	msgNoOptions        = "Tidak ada opsi pengiriman yang tersedia"
	msgQuoteFailed      = "Gagal menghitung ongkos kirim"
	msgNotReady         = "Lengkapi alamat dan metode pengiriman untuk semua toko"
	msgEmptyCheckout    = "Tidak ada barang yang dapat di-checkout"
	msgSubmitInProgress = "Checkout sedang diproses"
	msgAlreadySubmitted = "Checkout untuk pesanan ini sudah dibuat"
	msgCheckoutFailed   = "Checkout gagal, silakan coba lagi"
	msgCheckoutSuccess  = "Checkout berhasil"
	msgLoadFailed       = "Gagal memuat data pembelian"
	msgUnauthorized     = "Sesi Anda telah berakhir, silakan masuk kembali"
	msgSessionNotFound  = "Sesi checkout tidak ditemukan atau sudah kedaluwarsa"
	msgStoreIndex       = "Toko tidak ditemukan pada sesi checkout"
	msgPurchaseCode     = "Kode pembelian wajib diisi"
	msgNoteTooLong      = "Catatan maksimal 500 karakter"
	msgUnavailable      = "Layanan sedang sibuk, silakan coba beberapa saat lagi"
)

// Failure is an operation error carrying the notice shown to the buyer.
type Failure struct {
	*common.AppError
	Notice Notice
}

// Unwrap exposes the AppError so errors.As finds it.
func (f *Failure) Unwrap() error { return f.AppError }

func infoFailure(code string, status int, err error, message string) *Failure {
	return &Failure{
		AppError: common.NewAppError(code, message, status, err),
		Notice:   Notice{Level: NoticeInfo, Message: message},
	}
}

func errorFailure(code string, status int, err error, message string) *Failure {
	return &Failure{
		AppError: common.NewAppError(code, message, status, err),
		Notice:   Notice{Level: NoticeError, Message: message},
	}
}

// AsFailure extracts a Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// classify maps infrastructure and lookup errors to buyer-facing failures.
func classify(err error) *Failure {
	if f, ok := AsFailure(err); ok {
		return f
	}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return errorFailure("SESSION_NOT_FOUND", http.StatusNotFound, err, msgSessionNotFound)
	case errors.Is(err, ErrStoreIndex):
		return errorFailure("STORE_NOT_FOUND", http.StatusNotFound, err, msgStoreIndex)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errorFailure("TIMEOUT", http.StatusGatewayTimeout, err, msgCheckoutFailed)
	}
	return errorFailure("INTERNAL", http.StatusInternalServerError, err, msgCheckoutFailed)
}

// upstreamFailure builds the failure for a marketplace error, preferring the
// backend message, then the error text, then fallback.
func upstreamFailure(code string, err error, fallback string) *Failure {
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return unavailableFailure(err)
	}
	if apiErr, ok := marketplace.AsAPIError(err); ok {
		if apiErr.Unauthorized() {
			return errorFailure("UNAUTHORIZED", http.StatusUnauthorized, err, msgUnauthorized)
		}
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			return errorFailure(code, http.StatusBadGateway, err, msg)
		}
		return errorFailure(code, http.StatusBadGateway, err, fallback)
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return errorFailure(code, http.StatusBadGateway, err, msg)
	}
	return errorFailure(code, http.StatusBadGateway, err, fallback)
}

// checkoutFailure unpacks validation failures into a joined field list
// before falling back to the backend message or a generic one.
func checkoutFailure(err error) *Failure {
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return unavailableFailure(err)
	}
	apiErr, ok := marketplace.AsAPIError(err)
	if !ok {
		return errorFailure("CHECKOUT_FAILED", http.StatusBadGateway, err, msgCheckoutFailed)
	}
	if apiErr.Unauthorized() {
		return errorFailure("UNAUTHORIZED", http.StatusUnauthorized, err, msgUnauthorized)
	}
	if apiErr.Validation() {
		if joined := apiErr.JoinedFieldErrors(); joined != "" {
			f := errorFailure("CHECKOUT_REJECTED", http.StatusUnprocessableEntity, err, joined)
			f.AppError.WithDetails(apiErr.FieldErrors)
			return f
		}
	}
	if msg := strings.TrimSpace(apiErr.Message); msg != "" {
		return errorFailure("CHECKOUT_FAILED", http.StatusBadGateway, err, msg)
	}
	return errorFailure("CHECKOUT_FAILED", http.StatusBadGateway, err, msgCheckoutFailed)
}

// unavailableFailure is returned while the marketplace breaker is open.
func unavailableFailure(err error) *Failure {
	return errorFailure("MARKETPLACE_UNAVAILABLE", http.StatusServiceUnavailable, err, msgUnavailable)
}
