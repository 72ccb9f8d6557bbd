package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/auth"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/middleware"
	"github.com/partnerdesk/api/internal/models"
	"github.com/partnerdesk/api/internal/service"
	"github.com/partnerdesk/api/internal/store"
	"github.com/partnerdesk/api/internal/view"
	"go.uber.org/zap"
)

// FlowStore defines the read methods needed by flow handlers.
// Satisfied by *postgres.Store; narrow interface for testability.
type FlowStore interface {
	ListOrders(ctx context.Context, table string, arg store.ListParams) ([]models.Order, int64, error)
	GetOrder(ctx context.Context, table string, locationID, id uuid.UUID) (models.Order, error)
	ListBookings(ctx context.Context, arg store.ListParams) ([]models.Booking, int64, error)
	GetBooking(ctx context.Context, locationID, id uuid.UUID) (models.Booking, error)
}

// FlowServicer defines the lifecycle operations needed by flow handlers.
// Satisfied by *service.LifecycleService.
type FlowServicer interface {
	TransitionOrder(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error)
	TransitionBooking(ctx context.Context, req service.TransitionRequest) (*service.BookingResult, error)
	UpdatePaymentStatus(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error)
	MarkSeen(ctx context.Context, flow *lifecycle.Flow, locationID, id uuid.UUID) error
}

// FlowHandler serves list, detail and action endpoints for every flow.
type FlowHandler struct {
	store    FlowStore
	svc      FlowServicer
	pageSize int
	log      *zap.Logger
}

// NewFlowHandler creates a new FlowHandler.
func NewFlowHandler(store FlowStore, svc FlowServicer, pageSize int, log *zap.Logger) *FlowHandler {
	if pageSize <= 0 {
		pageSize = view.DefaultPageSize
	}
	return &FlowHandler{store: store, svc: svc, pageSize: pageSize, log: log}
}

// RegisterRoutes registers flow endpoints on the given Chi router.
// Expected to be mounted inside a location-scoped subrouter: /locations/{lid}/flows
func (h *FlowHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{flow}", h.List)
	r.Get("/{flow}/{id}", h.Get)
	r.Patch("/{flow}/{id}/status", h.UpdateStatus)
	r.Post("/{flow}/{id}/seen", h.MarkSeen)
	r.Patch("/{flow}/{id}/payment-status", h.UpdatePaymentStatus)
}

// --- Request / Response types ---

type updateStatusRequest struct {
	Status       string `json:"status"`
	CancelReason string `json:"cancel_reason"`
}

type updatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

type actionResponse struct {
	Row       view.Row          `json:"row"`
	Inventory *inventorySummary `json:"inventory,omitempty"`
}

type inventorySummary struct {
	Adjusted int `json:"adjusted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// --- Helpers ---

type flowScope struct {
	flow       *lifecycle.Flow
	locationID uuid.UUID
	claims     *auth.Claims
}

// resolveFlow parses the location and flow of the request and applies the
// partner type gate.
func resolveFlow(w http.ResponseWriter, r *http.Request) (flowScope, bool) {
	locationID, err := uuid.Parse(chi.URLParam(r, "lid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid location ID")
		return flowScope{}, false
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return flowScope{}, false
	}

	flow, ok := lifecycle.FlowBySlug(chi.URLParam(r, "flow"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown flow")
		return flowScope{}, false
	}
	if !claims.CanAccessPartnerType(flow.PartnerType) {
		writeError(w, http.StatusForbidden, "flow not available for this partner")
		return flowScope{}, false
	}
	return flowScope{flow: flow, locationID: locationID, claims: claims}, true
}

func parseRowID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps lifecycle errors to inline JSON responses.
func (h *FlowHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrWrongFlow):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrUnknownStatus):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPersistence):
		writeError(w, http.StatusInternalServerError, service.ErrPersistence.Error())
	default:
		h.log.Error(op, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func summarize(res *service.OrderResult) *inventorySummary {
	if res.Inventory == nil {
		return nil
	}
	return &inventorySummary{
		Adjusted: len(res.Inventory.Adjusted),
		Skipped:  len(res.Inventory.Skipped),
		Failed:   len(res.Inventory.Failures),
	}
}

// --- Handlers ---

// List handles GET /locations/{lid}/flows/{flow}.
func (h *FlowHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := resolveFlow(w, r)
	if !ok {
		return
	}

	filter, err := view.ParseFilter(r.URL.Query())
	if err == nil {
		filter, err = filter.Normalize(scope.flow)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params := filter.Params([]uuid.UUID{scope.locationID}, h.pageSize)

	page := view.Page{Flow: scope.flow.Slug, Page: filter.Page, PageSize: h.pageSize, Filter: filter}
	if scope.flow.IsBooking() {
		bookings, total, err := h.store.ListBookings(r.Context(), params)
		if err != nil {
			h.log.Error("list bookings", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		page.Rows = make([]view.Row, len(bookings))
		for i, b := range bookings {
			page.Rows[i] = view.BookingRow(b)
		}
		page.Total = total
	} else {
		orders, total, err := h.store.ListOrders(r.Context(), scope.flow.Table, params)
		if err != nil {
			h.log.Error("list orders", zap.String("flow", scope.flow.Slug), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		page.Rows = make([]view.Row, len(orders))
		for i, o := range orders {
			page.Rows[i] = view.OrderRow(scope.flow, o)
		}
		page.Total = total
	}

	writeJSON(w, http.StatusOK, page)
}

// Get handles GET /locations/{lid}/flows/{flow}/{id}.
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := resolveFlow(w, r)
	if !ok {
		return
	}
	id, ok := parseRowID(w, r)
	if !ok {
		return
	}

	var row view.Row
	if scope.flow.IsBooking() {
		b, err := h.store.GetBooking(r.Context(), scope.locationID, id)
		if err != nil {
			h.writeServiceError(w, "get booking", err)
			return
		}
		row = view.BookingRow(b)
	} else {
		o, err := h.store.GetOrder(r.Context(), scope.flow.Table, scope.locationID, id)
		if err != nil {
			h.writeServiceError(w, "get order", err)
			return
		}
		row = view.OrderRow(scope.flow, o)
	}

	writeJSON(w, http.StatusOK, row)
}

// UpdateStatus handles PATCH /locations/{lid}/flows/{flow}/{id}/status.
func (h *FlowHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	scope, ok := resolveFlow(w, r)
	if !ok {
		return
	}
	id, ok := parseRowID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Status = strings.TrimSpace(req.Status)
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	if !scope.flow.Knows(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	tr := service.TransitionRequest{
		Flow:         scope.flow,
		LocationID:   scope.locationID,
		ID:           id,
		Status:       req.Status,
		CancelReason: req.CancelReason,
		ActorID:      scope.claims.UserID,
	}

	if scope.flow.IsBooking() {
		res, err := h.svc.TransitionBooking(r.Context(), tr)
		if err != nil {
			h.writeServiceError(w, "transition booking", err)
			return
		}
		writeJSON(w, http.StatusOK, actionResponse{Row: view.BookingRow(res.Booking)})
		return
	}

	res, err := h.svc.TransitionOrder(r.Context(), tr)
	if err != nil {
		h.writeServiceError(w, "transition order", err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Row: view.OrderRow(scope.flow, res.Order), Inventory: summarize(res)})
}

// UpdatePaymentStatus handles PATCH /locations/{lid}/flows/payment-orders/{id}/payment-status.
func (h *FlowHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	scope, ok := resolveFlow(w, r)
	if !ok {
		return
	}
	if scope.flow != lifecycle.PaymentOrders {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, ok := parseRowID(w, r)
	if !ok {
		return
	}

	var req updatePaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.PaymentStatus = strings.TrimSpace(req.PaymentStatus)
	if !lifecycle.Payments.Knows(req.PaymentStatus) {
		writeError(w, http.StatusBadRequest, "invalid payment_status")
		return
	}

	res, err := h.svc.UpdatePaymentStatus(r.Context(), service.TransitionRequest{
		Flow:       scope.flow,
		LocationID: scope.locationID,
		ID:         id,
		Status:     req.PaymentStatus,
		ActorID:    scope.claims.UserID,
	})
	if err != nil {
		h.writeServiceError(w, "update payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Row: view.OrderRow(scope.flow, res.Order)})
}

// MarkSeen handles POST /locations/{lid}/flows/{flow}/{id}/seen.
func (h *FlowHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	scope, ok := resolveFlow(w, r)
	if !ok {
		return
	}
	id, ok := parseRowID(w, r)
	if !ok {
		return
	}

	if err := h.svc.MarkSeen(r.Context(), scope.flow, scope.locationID, id); err != nil {
		h.writeServiceError(w, "mark seen", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
