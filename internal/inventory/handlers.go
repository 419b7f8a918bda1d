package inventory

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Handler exposes HTTP endpoints for the inventory catalog.
type Handler struct {
	Svc *Service
}

type itemView struct {
	Item
	Status string `json:"status"`
}

type createInput struct {
	Name         string        `json:"name" validate:"required"`
	SKU          string        `json:"sku" validate:"required"`
	Price        pricing.Money `json:"price" validate:"gte=0"`
	Stock        int32         `json:"stock" validate:"gte=0"`
	ReorderPoint int32         `json:"reorderPoint" validate:"gte=0"`
}

type stockInput struct {
	NewQuantity int32  `json:"newQuantity" validate:"gte=0"`
	Reason      string `json:"reason"`
}

// List renders the catalog with derived stock status.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]itemView, 0, len(items))
	for _, it := range items {
		views = append(views, itemView{Item: it, Status: it.StockStatus()})
	}
	common.JSONData(w, http.StatusOK, views)
}

// Create adds a catalog item.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	item, err := h.Svc.Create(r.Context(), Item{
		Name:         payload.Name,
		SKU:          payload.SKU,
		Price:        payload.Price,
		Stock:        payload.Stock,
		ReorderPoint: payload.ReorderPoint,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, itemView{Item: item, Status: item.StockStatus()})
}

// SetStock adjusts an item's absolute stock level.
func (h *Handler) SetStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "itemId")
	var payload stockInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	item, err := h.Svc.SetStock(r.Context(), id, payload.NewQuantity, payload.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, itemView{Item: item, Status: item.StockStatus()})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "inventory item not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
