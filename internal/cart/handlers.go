package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/inventory"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Handler exposes HTTP endpoints for session carts.
type Handler struct {
	Svc    *Service
	TaxBps int
}

type addInput struct {
	ItemID string `json:"itemId" validate:"required"`
	Qty    int    `json:"qty" validate:"gt=0"`
}

type qtyInput struct {
	Op string `json:"op" validate:"required,oneof=increase decrease"`
}

type codeInput struct {
	Code string `json:"code" validate:"required"`
}

type cartView struct {
	Cart
	Summary pricing.Summary `json:"summary"`
}

func (h *Handler) view(c Cart) cartView {
	return cartView{Cart: c, Summary: pricing.Price(c.PricingLines(), h.TaxBps)}
}

// Get renders the cart with its priced summary.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, h.view(c))
}

// AddItem adds or increments a line.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload addInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "sessionId"), payload.ItemID, payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, h.view(c))
}

// UpdateQty increases or decreases a line by one.
func (h *Handler) UpdateQty(w http.ResponseWriter, r *http.Request) {
	var payload qtyInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	sessionID := chi.URLParam(r, "sessionId")
	itemID := chi.URLParam(r, "itemId")
	var (
		c   Cart
		err error
	)
	if payload.Op == "increase" {
		c, err = h.Svc.IncreaseQty(r.Context(), sessionID, itemID)
	} else {
		c, err = h.Svc.DecreaseQty(r.Context(), sessionID, itemID)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, h.view(c))
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.Svc.RemoveItem(r.Context(), chi.URLParam(r, "sessionId"), chi.URLParam(r, "itemId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, h.view(c))
}

// ApplyCode applies a discount code to every line. A miss is reported in the
// payload, not as an error.
func (h *Handler) ApplyCode(w http.ResponseWriter, r *http.Request) {
	var payload codeInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	c, resolved, err := h.Svc.ApplyCode(r.Context(), chi.URLParam(r, "sessionId"), payload.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(c), "resolved": resolved})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, inventory.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
