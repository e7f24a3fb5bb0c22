package checkout

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Handler exposes checkout sessions over HTTP.
type Handler struct {
	Svc *Service
}

type startPayload struct {
	PurchaseCode string `json:"purchase_code" validate:"required,max=64"`
}

type addressPayload struct {
	AddressID int64 `json:"address_id" validate:"required,gt=0"`
}

// shippingPayload names the option by key; service is the older bare code
// form and only resolves when it is unambiguous.
type shippingPayload struct {
	Key     string `json:"key" validate:"required_without=Service,max=100"`
	Service string `json:"service" validate:"required_without=Key,max=100"`
}

func (p shippingPayload) ref() string {
	if p.Key != "" {
		return p.Key
	}
	return p.Service
}

type notePayload struct {
	Note string `json:"note" validate:"max=500"`
}

type envelope struct {
	Data   *View             `json:"data,omitempty"`
	Notice *Notice           `json:"notice,omitempty"`
	Error  *common.ErrorBody `json:"error,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// Register mounts the session routes on r. submitMW wraps the submit route
// only (idempotency keys).
func (h *Handler) Register(r chi.Router, submitMW ...func(http.Handler) http.Handler) {
	r.Route("/checkout/sessions", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Discard)
			r.With(submitMW...).Post("/submit", h.Submit)
			r.Route("/stores/{index}", func(r chi.Router) {
				r.Put("/address", h.SelectAddress)
				r.Post("/shipping-quote", h.CalculateShipping)
				r.Put("/shipping", h.SelectShipping)
				r.Put("/note", h.SetNote)
			})
		})
	})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var payload startPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, Result{}, err)
		return
	}
	res, err := h.Svc.Start(r.Context(), payload.PurchaseCode)
	h.write(w, http.StatusCreated, res, err)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	h.write(w, http.StatusOK, res, err)
}

func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, Result{}, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	index, ok := h.storeIndex(w, r)
	if !ok {
		return
	}
	var payload addressPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, Result{}, err)
		return
	}
	res, err := h.Svc.SelectAddress(r.Context(), chi.URLParam(r, "id"), index, payload.AddressID)
	h.write(w, http.StatusOK, res, err)
}

func (h *Handler) CalculateShipping(w http.ResponseWriter, r *http.Request) {
	index, ok := h.storeIndex(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.CalculateShipping(r.Context(), chi.URLParam(r, "id"), index)
	h.write(w, http.StatusOK, res, err)
}

func (h *Handler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	index, ok := h.storeIndex(w, r)
	if !ok {
		return
	}
	var payload shippingPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, Result{}, err)
		return
	}
	res, err := h.Svc.SelectShipping(r.Context(), chi.URLParam(r, "id"), index, payload.ref())
	h.write(w, http.StatusOK, res, err)
}

func (h *Handler) SetNote(w http.ResponseWriter, r *http.Request) {
	index, ok := h.storeIndex(w, r)
	if !ok {
		return
	}
	var payload notePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, Result{}, err)
		return
	}
	res, err := h.Svc.SetNote(r.Context(), chi.URLParam(r, "id"), index, payload.Note)
	h.write(w, http.StatusOK, res, err)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, res, err)
		return
	}
	common.JSON(w, http.StatusCreated, envelope{
		Data:   res.View,
		Notice: res.Notice,
		Meta:   map[string]string{"kode_tagihan": res.BillingCode, "redirect_url": res.PaymentURL},
	})
}

func (h *Handler) storeIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		h.writeError(w, Result{}, common.NewAppError("BAD_REQUEST", "invalid store index", http.StatusBadRequest, err))
		return 0, false
	}
	return index, true
}

func (h *Handler) write(w http.ResponseWriter, status int, res Result, err error) {
	if err != nil {
		h.writeError(w, res, err)
		return
	}
	common.JSON(w, status, envelope{Data: res.View, Notice: res.Notice})
}

func (h *Handler) writeError(w http.ResponseWriter, res Result, err error) {
	status, body := common.BodyOf(err)
	env := envelope{Data: res.View, Error: &body}
	if common.IsAppError(err) {
		env.Notice = res.Notice
	}
	common.JSON(w, status, env)
}
