package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eventtix/tix-mercadopago/internal/common"
	"github.com/eventtix/tix-mercadopago/internal/tix"
)

// Handler exposes the gateway over HTTP: the checkout entry point and the
// tickets-page callback route the gateway redirects buyers back to.
type Handler struct {
	Addon *Addon
}

// Checkout initiates a hosted checkout for the order token and redirects
// the buyer to the gateway on success.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Addon == nil {
		common.JSONError(w, http.StatusInternalServerError, "GATEWAY_NOT_CONFIGURED", "payment gateway unavailable")
		return
	}
	token := strings.TrimSpace(chi.URLParam(r, "token"))
	redirect, err := h.Addon.Checkout(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// TicketsPage handles the host's ticket page route. Requests for other
// payment methods are ignored; return and cancel actions are dispatched
// to the addon.
func (h *Handler) TicketsPage(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Addon == nil {
		common.JSONError(w, http.StatusInternalServerError, "GATEWAY_NOT_CONFIGURED", "payment gateway unavailable")
		return
	}
	params := r.URL.Query()
	if params.Get(ParamMethod) != MethodID {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	switch params.Get(ParamAction) {
	case ActionReturn:
		status, err := h.Addon.PaymentReturn(r.Context(), params)
		if err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, paymentResult{Token: params.Get(ParamToken), Status: status})
	case ActionCancel:
		status, err := h.Addon.PaymentCancel(r.Context(), params)
		if err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, paymentResult{Token: params.Get(ParamToken), Status: status})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type paymentResult struct {
	Token  string            `json:"token"`
	Status tix.PaymentStatus `json:"status"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnsupportedCurrency):
		err = common.Wrap(err, http.StatusBadRequest, "CURRENCY_NOT_SUPPORTED", "The selected currency is not supported by this payment method.")
	case errors.Is(err, ErrMissingToken):
		err = common.Wrap(err, http.StatusBadRequest, "MISSING_TOKEN", "payment token is required")
	case errors.Is(err, ErrAttendeeNotFound):
		err = common.Wrap(err, http.StatusNotFound, "ATTENDEES_NOT_FOUND", "no attendees found for payment token")
	case errors.Is(err, ErrDuplicateNotification):
		err = common.Wrap(err, http.StatusConflict, "DUPLICATE_NOTIFICATION", "notification already processed")
	case errors.Is(err, ErrCheckoutCreation):
		err = common.Wrap(err, http.StatusBadGateway, "CHECKOUT_FAILED", "payment could not be initiated")
	}
	common.WriteError(w, err)
}
