package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/transfer"
)

// EquipmentHandler handles equipment endpoints.
type EquipmentHandler struct {
	DB        *sql.DB
	Transfers *transfer.Service
}

type createEquipmentRequest struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serial_number"`
	Name         string `json:"name"`
	HolderID     string `json:"holder_id"`
}

// List handles GET /api/equipment. ?holder=me lists the caller's items.
func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	holder := r.URL.Query().Get("holder")
	if holder == "me" {
		holder = identity(r).UID
	}

	items, err := store.ListEquipment(r.Context(), h.DB, holder)
	if err != nil {
		slog.Error("failed to list equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list equipment")
		return
	}
	if items == nil {
		items = []model.Equipment{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/equipment.
func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEquipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if req.HolderID != "" {
		holder, err := store.GetUser(r.Context(), h.DB, req.HolderID)
		if err != nil {
			slog.Error("failed to get holder", "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to create equipment")
			return
		}
		if holder == nil || holder.DeletedAt != nil {
			jsonError(w, http.StatusBadRequest, "holder does not exist")
			return
		}
	}

	existing, err := store.GetEquipment(r.Context(), h.DB, req.ID)
	if err != nil {
		slog.Error("failed to get equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create equipment")
		return
	}
	if existing != nil {
		jsonError(w, http.StatusConflict, "equipment id already exists")
		return
	}

	eq, err := store.CreateEquipment(r.Context(), h.DB, req.ID, req.SerialNumber, req.Name, req.HolderID)
	if err != nil {
		slog.Error("failed to create equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create equipment")
		return
	}

	slog.Info("equipment created", "user", GetClaims(r.Context()).Username, "equipment", eq.ID, "holder", eq.HolderID)
	jsonResponse(w, http.StatusCreated, eq)
}

// Get handles GET /api/equipment/{id}.
func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	eq, err := store.GetEquipment(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		slog.Error("failed to get equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get equipment")
		return
	}
	if eq == nil {
		jsonError(w, http.StatusNotFound, "equipment not found")
		return
	}
	jsonResponse(w, http.StatusOK, eq)
}

// ActiveTransfer handles GET /api/equipment/{id}/transfer.
func (h *EquipmentHandler) ActiveTransfer(w http.ResponseWriter, r *http.Request) {
	tr, err := h.Transfers.GetActiveRequestForEquipment(r.Context(), r.PathValue("id"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if tr == nil {
		jsonError(w, http.StatusNotFound, "no pending transfer")
		return
	}
	jsonResponse(w, http.StatusOK, tr)
}

// History handles GET /api/equipment/{id}/history. Users below manager only
// see requests they took part in.
func (h *EquipmentHandler) History(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.Transfers.List(r.Context(), identity(r), model.TransferFilter{
		EquipmentID: r.PathValue("id"),
	})
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if transfers == nil {
		transfers = []model.TransferRequest{}
	}
	jsonResponse(w, http.StatusOK, transfers)
}
