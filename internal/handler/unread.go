package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/middleware"
	"go.uber.org/zap"
)

// UnreadStore counts unacknowledged rows.
// Satisfied by *postgres.Store; narrow interface for testability.
type UnreadStore interface {
	CountUnread(ctx context.Context, table string, locationIDs []uuid.UUID) (int64, error)
}

// UnreadHandler serves the per-flow unread badges.
type UnreadHandler struct {
	store UnreadStore
	log   *zap.Logger
}

func NewUnreadHandler(store UnreadStore, log *zap.Logger) *UnreadHandler {
	return &UnreadHandler{store: store, log: log}
}

// RegisterRoutes registers unread endpoints on a /locations/{lid} subrouter.
func (h *UnreadHandler) RegisterRoutes(r chi.Router) {
	r.Get("/unread", h.Counts)
}

type unreadResponse struct {
	Flows map[string]int64 `json:"flows"`
	Total int64            `json:"total"`
}

// Counts handles GET /locations/{lid}/unread. Only flows the caller may
// open are counted.
func (h *UnreadHandler) Counts(w http.ResponseWriter, r *http.Request) {
	locationID, err := uuid.Parse(chi.URLParam(r, "lid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid location ID")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	resp := unreadResponse{Flows: make(map[string]int64)}
	for _, flow := range lifecycle.Flows() {
		if !claims.CanAccessPartnerType(flow.PartnerType) {
			continue
		}
		n, err := h.store.CountUnread(r.Context(), flow.Table, []uuid.UUID{locationID})
		if err != nil {
			h.log.Error("count unread", zap.String("flow", flow.Slug), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		resp.Flows[flow.Slug] = n
		resp.Total += n
	}

	writeJSON(w, http.StatusOK, resp)
}
