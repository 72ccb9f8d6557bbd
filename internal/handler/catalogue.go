package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/models"
	"go.uber.org/zap"
)

const (
	defaultMovementLimit = 50
	maxMovementLimit     = 200
)

// CatalogueStore defines the read methods for catalogue endpoints.
// Satisfied by *postgres.Store; narrow interface for testability.
type CatalogueStore interface {
	ListCatalogue(ctx context.Context, locationID uuid.UUID) ([]models.CatalogueItem, error)
	ListStockMovements(ctx context.Context, locationID uuid.UUID, itemID *uuid.UUID, limit int) ([]models.StockMovement, error)
}

// CatalogueHandler exposes catalogue stock and its movement log.
type CatalogueHandler struct {
	store CatalogueStore
	log   *zap.Logger
}

func NewCatalogueHandler(store CatalogueStore, log *zap.Logger) *CatalogueHandler {
	return &CatalogueHandler{store: store, log: log}
}

// RegisterRoutes registers catalogue endpoints on a /locations/{lid} subrouter.
func (h *CatalogueHandler) RegisterRoutes(r chi.Router) {
	r.Get("/catalogue", h.List)
	r.Get("/stock-movements", h.Movements)
}

type catalogueItemResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Price             string    `json:"price"`
	StockQty          int32     `json:"stock_qty"`
	TrackInventory    bool      `json:"track_inventory"`
	LowStockThreshold int32     `json:"low_stock_threshold"`
	StockStatus       string    `json:"stock_status"`
	IsAvailable       bool      `json:"is_available"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type stockMovementResponse struct {
	ID           uuid.UUID `json:"id"`
	ItemID       uuid.UUID `json:"item_id"`
	MovementType string    `json:"movement_type"`
	QtyDelta     int32     `json:"qty_delta"`
	QtyBefore    int32     `json:"qty_before"`
	QtyAfter     int32     `json:"qty_after"`
	Reason       string    `json:"reason"`
	ActorID      uuid.UUID `json:"actor_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func toCatalogueItemResponse(it models.CatalogueItem) catalogueItemResponse {
	return catalogueItemResponse{
		ID:                it.ID,
		Name:              it.Name,
		Price:             it.Price.StringFixed(2),
		StockQty:          it.StockQty,
		TrackInventory:    it.TrackInventory,
		LowStockThreshold: it.LowStockThreshold,
		StockStatus:       it.StockStatus,
		IsAvailable:       it.IsAvailable,
		UpdatedAt:         it.UpdatedAt,
	}
}

func toStockMovementResponse(mv models.StockMovement) stockMovementResponse {
	return stockMovementResponse{
		ID:           mv.ID,
		ItemID:       mv.ItemID,
		MovementType: mv.MovementType,
		QtyDelta:     mv.QtyDelta,
		QtyBefore:    mv.QtyBefore,
		QtyAfter:     mv.QtyAfter,
		Reason:       mv.Reason,
		ActorID:      mv.ActorID,
		CreatedAt:    mv.CreatedAt,
	}
}

// List handles GET /locations/{lid}/catalogue.
func (h *CatalogueHandler) List(w http.ResponseWriter, r *http.Request) {
	locationID, err := uuid.Parse(chi.URLParam(r, "lid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid location ID")
		return
	}

	items, err := h.store.ListCatalogue(r.Context(), locationID)
	if err != nil {
		h.log.Error("list catalogue", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]catalogueItemResponse, len(items))
	for i, it := range items {
		resp[i] = toCatalogueItemResponse(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Movements handles GET /locations/{lid}/stock-movements.
func (h *CatalogueHandler) Movements(w http.ResponseWriter, r *http.Request) {
	locationID, err := uuid.Parse(chi.URLParam(r, "lid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid location ID")
		return
	}

	var itemID *uuid.UUID
	if s := r.URL.Query().Get("item_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid item_id")
			return
		}
		itemID = &id
	}

	limit := defaultMovementLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxMovementLimit {
		limit = maxMovementLimit
	}

	movements, err := h.store.ListStockMovements(r.Context(), locationID, itemID, limit)
	if err != nil {
		h.log.Error("list stock movements", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]stockMovementResponse, len(movements))
	for i, mv := range movements {
		resp[i] = toStockMovementResponse(mv)
	}
	writeJSON(w, http.StatusOK, resp)
}
