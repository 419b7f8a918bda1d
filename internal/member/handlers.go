package member

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes HTTP endpoints for the membership program.
type Handler struct {
	Svc *Service
}

type registerInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
	Tier  string `json:"tier" validate:"required"`
}

// Get returns a member by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.Svc.Get(r.Context(), chi.URLParam(r, "memberId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, m)
}

// Register creates a new member.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var payload registerInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	m, err := h.Svc.Register(r.Context(), Member{
		Name:  payload.Name,
		Email: payload.Email,
		Phone: payload.Phone,
		Tier:  payload.Tier,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, m)
}

// Tiers lists the loyalty tiers.
func (h *Handler) Tiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.Svc.Tiers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, tiers)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "member not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
