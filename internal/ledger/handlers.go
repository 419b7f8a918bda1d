package ledger

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes read endpoints over the sales ledger.
type Handler struct {
	Svc *Service
}

// List renders transactions inside the requested window.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	from, to := parseRange(r)
	limit := int32(0)
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = int32(n)
		}
	}
	txs, err := h.Svc.List(r.Context(), from, to, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, txs)
}

// Report renders the aggregated sales report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	from, to := parseRange(r)
	report, err := h.Svc.SalesReport(r.Context(), from, to)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, report)
}

func parseRange(r *http.Request) (time.Time, time.Time) {
	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			from = t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			// inclusive end of day
			to = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return from, to
}
