package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/transfer"
)

// TransfersHandler handles transfer request endpoints.
type TransfersHandler struct {
	Transfers *transfer.Service
}

type rejectTransferRequest struct {
	Reason string `json:"reason"`
}

// Create handles POST /api/transfers.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req transfer.CreateInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tr, err := h.Transfers.Create(r.Context(), identity(r), req)
	id := ""
	if tr != nil {
		id = tr.ID
	}
	transferResult(w, r, http.StatusCreated, id, err)
}

// Approve handles POST /api/transfers/{id}/approve.
func (h *TransfersHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := h.Transfers.Approve(r.Context(), identity(r), id)
	transferResult(w, r, http.StatusOK, id, err)
}

// Reject handles POST /api/transfers/{id}/reject. The body is optional.
func (h *TransfersHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectTransferRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	id := r.PathValue("id")
	_, err := h.Transfers.Reject(r.Context(), identity(r), id, req.Reason)
	transferResult(w, r, http.StatusOK, id, err)
}

// Cancel handles POST /api/transfers/{id}/cancel.
func (h *TransfersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := h.Transfers.Cancel(r.Context(), identity(r), id)
	transferResult(w, r, http.StatusOK, id, err)
}

// Remind handles POST /api/transfers/{id}/remind.
func (h *TransfersHandler) Remind(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := h.Transfers.Remind(r.Context(), identity(r), id)
	transferResult(w, r, http.StatusOK, id, err)
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	tr, err := h.Transfers.Get(r.Context(), identity(r), r.PathValue("id"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, tr)
}

// List handles GET /api/transfers.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.TransferFilter{
		UserID:      q.Get("user_id"),
		Direction:   q.Get("direction"),
		Status:      model.TransferStatus(q.Get("status")),
		EquipmentID: q.Get("equipment_id"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	transfers, err := h.Transfers.List(r.Context(), identity(r), filter)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if transfers == nil {
		transfers = []model.TransferRequest{}
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// Reconcile handles POST /api/transfers/reconcile.
func (h *TransfersHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.Transfers.Reconcile(r.Context())
	if err != nil {
		serviceError(w, r, err)
		return
	}

	slog.Info("reconciliation requested", "user", GetClaims(r.Context()).Username,
		"repaired", res.Repaired, "superseded", res.Superseded, "failed", res.Failed)
	jsonResponse(w, http.StatusOK, res)
}
