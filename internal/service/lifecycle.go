package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/events"
	"github.com/partnerdesk/api/internal/inventory"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/metrics"
	"github.com/partnerdesk/api/internal/models"
	"github.com/partnerdesk/api/internal/store"
	"go.uber.org/zap"
)

// Errors returned by the lifecycle service.
var (
	ErrPersistence = errors.New("could not save status change")
	ErrWrongFlow   = errors.New("operation not supported for this flow")
)

// LifecycleStore defines the row store methods the service needs.
// Satisfied by *postgres.Store; narrow interface for testability.
type LifecycleStore interface {
	GetOrder(ctx context.Context, table string, locationID, id uuid.UUID) (models.Order, error)
	GetBooking(ctx context.Context, locationID, id uuid.UUID) (models.Booking, error)
	UpdateStatus(ctx context.Context, arg store.StatusUpdate) error
	MarkSeen(ctx context.Context, table string, locationID, id uuid.UUID, at time.Time) error
}

// InventoryApplier applies stock side effects of a fulfilled order.
type InventoryApplier interface {
	Apply(ctx context.Context, in inventory.ApplyInput) inventory.Report
}

// EventPublisher emits domain events, best-effort.
type EventPublisher interface {
	StatusChanged(ctx context.Context, ev events.StatusChanged)
}

// TransitionRequest is a validated partner action on one row.
type TransitionRequest struct {
	Flow         *lifecycle.Flow
	LocationID   uuid.UUID
	ID           uuid.UUID
	Status       string
	CancelReason string
	ActorID      uuid.UUID
}

// OrderResult is the re-read order after an accepted transition.
type OrderResult struct {
	Order     models.Order
	Decision  lifecycle.Decision
	Inventory *inventory.Report
}

// BookingResult is the re-read booking after an accepted transition.
type BookingResult struct {
	Booking  models.Booking
	Decision lifecycle.Decision
}

// LifecycleService drives status changes for every flow.
type LifecycleService struct {
	store     LifecycleStore
	inventory InventoryApplier
	events    EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

// NewLifecycleService creates a LifecycleService. inv and pub may be nil.
func NewLifecycleService(st LifecycleStore, inv InventoryApplier, pub EventPublisher, log *zap.Logger) *LifecycleService {
	return &LifecycleService{
		store:     st,
		inventory: inv,
		events:    pub,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// TransitionOrder moves an order along its flow. The write is committed
// before any inventory side effect runs; side-effect failures never undo it.
func (s *LifecycleService) TransitionOrder(ctx context.Context, req TransitionRequest) (*OrderResult, error) {
	if req.Flow.IsBooking() {
		return nil, ErrWrongFlow
	}
	current, err := s.store.GetOrder(ctx, req.Flow.Table, req.LocationID, req.ID)
	if err != nil {
		return nil, err
	}

	decision, err := lifecycle.Decide(req.Flow, current.Status, req.Status)
	if err != nil {
		metrics.TransitionsRejectedTotal.WithLabelValues(req.Flow.Slug).Inc()
		return nil, err
	}

	at := s.now()
	if err := s.persist(ctx, req, "status", decision, at); err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(req.Flow.Slug, decision.To).Inc()

	res := &OrderResult{Decision: decision}
	if decision.RequiresInventoryDecrement && s.inventory != nil {
		// The status is committed; a client disconnect must not cut the
		// stock adjustment short.
		rep := s.inventory.Apply(context.WithoutCancel(ctx), inventory.ApplyInput{
			LocationID: current.LocationID,
			OrderID:    current.ID,
			OrderCode:  current.OrderCode,
			ActorID:    req.ActorID,
			Items:      current.Items,
		})
		res.Inventory = &rep
	}

	s.publish(ctx, req, "status", decision, at)

	res.Order = s.reloadOrder(ctx, req, current, decision, at)
	return res, nil
}

// UpdatePaymentStatus moves a payment order along the payment sub-flow.
func (s *LifecycleService) UpdatePaymentStatus(ctx context.Context, req TransitionRequest) (*OrderResult, error) {
	if req.Flow != lifecycle.PaymentOrders {
		return nil, ErrWrongFlow
	}
	current, err := s.store.GetOrder(ctx, req.Flow.Table, req.LocationID, req.ID)
	if err != nil {
		return nil, err
	}

	decision, err := lifecycle.Decide(lifecycle.Payments, current.PaymentStatus, req.Status)
	if err != nil {
		metrics.TransitionsRejectedTotal.WithLabelValues(lifecycle.Payments.Slug).Inc()
		return nil, err
	}

	at := s.now()
	req.CancelReason = ""
	if err := s.persist(ctx, req, "payment_status", decision, at); err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(lifecycle.Payments.Slug, decision.To).Inc()
	s.publish(ctx, req, "payment_status", decision, at)

	updated, err := s.store.GetOrder(ctx, req.Flow.Table, req.LocationID, req.ID)
	if err != nil {
		s.log.Warn("re-read after payment status change", zap.String("id", req.ID.String()), zap.Error(err))
		updated = current
		updated.PaymentStatus = decision.To
		stampLocal(updated.Timestamps, decision.TimestampField, at)
	}
	return &OrderResult{Order: updated, Decision: decision}, nil
}

// TransitionBooking moves a booking along the booking flow.
func (s *LifecycleService) TransitionBooking(ctx context.Context, req TransitionRequest) (*BookingResult, error) {
	if !req.Flow.IsBooking() {
		return nil, ErrWrongFlow
	}
	current, err := s.store.GetBooking(ctx, req.LocationID, req.ID)
	if err != nil {
		return nil, err
	}

	decision, err := lifecycle.Decide(req.Flow, current.Status, req.Status)
	if err != nil {
		metrics.TransitionsRejectedTotal.WithLabelValues(req.Flow.Slug).Inc()
		return nil, err
	}

	at := s.now()
	if err := s.persist(ctx, req, "status", decision, at); err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(req.Flow.Slug, decision.To).Inc()
	s.publish(ctx, req, "status", decision, at)

	updated, err := s.store.GetBooking(ctx, req.LocationID, req.ID)
	if err != nil {
		s.log.Warn("re-read after booking transition", zap.String("id", req.ID.String()), zap.Error(err))
		updated = current
		updated.Status = decision.To
		updated.Read = true
		stampLocal(updated.Timestamps, decision.TimestampField, at)
	}
	return &BookingResult{Booking: updated, Decision: decision}, nil
}

// MarkSeen acknowledges a row without changing its status.
func (s *LifecycleService) MarkSeen(ctx context.Context, flow *lifecycle.Flow, locationID, id uuid.UUID) error {
	err := s.store.MarkSeen(ctx, flow.Table, locationID, id, s.now())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return err
}

func (s *LifecycleService) persist(ctx context.Context, req TransitionRequest, column string, d lifecycle.Decision, at time.Time) error {
	err := s.store.UpdateStatus(ctx, store.StatusUpdate{
		Table:          req.Flow.Table,
		ID:             req.ID,
		LocationID:     req.LocationID,
		StatusColumn:   column,
		Status:         d.To,
		TimestampField: d.TimestampField,
		CancelReason:   cancelReason(d, req.CancelReason),
		MarkRead:       d.MarksRead,
		At:             at,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	metrics.OperationErrorsTotal.WithLabelValues("update_status").Inc()
	s.log.Error("persist status change",
		zap.String("flow", req.Flow.Slug),
		zap.String("id", req.ID.String()),
		zap.String("to", d.To),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func (s *LifecycleService) publish(ctx context.Context, req TransitionRequest, column string, d lifecycle.Decision, at time.Time) {
	if s.events == nil {
		return
	}
	s.events.StatusChanged(ctx, events.StatusChanged{
		Flow:       req.Flow.Slug,
		Table:      req.Flow.Table,
		ID:         req.ID,
		LocationID: req.LocationID,
		Field:      column,
		From:       d.From,
		To:         d.To,
		ActorID:    req.ActorID,
		At:         at,
	})
}

// reloadOrder re-reads the row so callers see exactly what was written. If
// the re-read fails the committed change is applied to the pre-read copy.
func (s *LifecycleService) reloadOrder(ctx context.Context, req TransitionRequest, current models.Order, d lifecycle.Decision, at time.Time) models.Order {
	updated, err := s.store.GetOrder(ctx, req.Flow.Table, req.LocationID, req.ID)
	if err == nil {
		return updated
	}
	s.log.Warn("re-read after order transition", zap.String("id", req.ID.String()), zap.Error(err))
	current.Status = d.To
	current.Read = true
	if current.PartnerSeenAt == nil {
		current.PartnerSeenAt = &at
	}
	if r := cancelReason(d, req.CancelReason); r != nil {
		current.CancelReason = r
	}
	stampLocal(current.Timestamps, d.TimestampField, at)
	return current
}

func stampLocal(ts map[string]*time.Time, field string, at time.Time) {
	if ts == nil {
		return
	}
	lifecycle.Stamp(ts, field, at)
}

// cancelReason returns the trimmed reason for cancel and reject moves only.
func cancelReason(d lifecycle.Decision, reason string) *string {
	if d.TimestampField != lifecycle.FieldCancelledAt && d.TimestampField != lifecycle.FieldRejectedAt {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}
	return &reason
}
