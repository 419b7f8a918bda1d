package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes the checkout endpoint.
type Handler struct {
	Svc *Service
}

type checkoutInput struct {
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=card cash ewallet"`
	CustomerName  string `json:"customerName" validate:"omitempty,max=120"`
	MemberID      string `json:"memberId" validate:"omitempty,max=64"`
}

// Checkout commits the session cart as a sales transaction.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var payload checkoutInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	receipt, err := h.Svc.Checkout(r.Context(), Input{
		SessionID:     chi.URLParam(r, "sessionId"),
		PaymentMethod: payload.PaymentMethod,
		CustomerName:  payload.CustomerName,
		MemberID:      payload.MemberID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, receipt)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var short *InsufficientStockError
	var persist *PersistenceError
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "EMPTY_CART", "cart is empty", nil)
	case errors.Is(err, ErrInvalidPayment):
		common.JSONError(w, http.StatusBadRequest, "INVALID_PAYMENT", "unsupported payment method", nil)
	case errors.Is(err, ErrCheckoutInFlight):
		common.JSONError(w, http.StatusConflict, "CHECKOUT_IN_FLIGHT", "checkout already in progress", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.As(err, &short):
		common.JSONError(w, http.StatusConflict, "INSUFFICIENT_STOCK", "not enough stock for one or more items",
			map[string]any{"itemIds": short.ItemIDs})
	case errors.As(err, &persist):
		common.JSONError(w, http.StatusInternalServerError, "CHECKOUT_FAILED", "checkout could not be completed", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}
