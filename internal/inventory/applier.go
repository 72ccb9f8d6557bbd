package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/enum"
	"github.com/partnerdesk/api/internal/metrics"
	"github.com/partnerdesk/api/internal/models"
	"github.com/partnerdesk/api/internal/store"
	"go.uber.org/zap"
)

// CatalogueStore is the slice of the row store the applier needs.
// Satisfied by *postgres.Store; narrow interface for testability.
type CatalogueStore interface {
	GetCatalogueItem(ctx context.Context, locationID, id uuid.UUID) (models.CatalogueItem, error)
	UpdateCatalogueStock(ctx context.Context, item models.CatalogueItem) error
	InsertStockMovement(ctx context.Context, mv models.StockMovement) (models.StockMovement, error)
}

// Failure stages.
const (
	StageLookup   = "lookup"
	StageUpdate   = "update"
	StageMovement = "movement"
)

// ApplyInput describes a fulfilled order whose lines consume stock.
type ApplyInput struct {
	LocationID uuid.UUID
	OrderID    uuid.UUID
	OrderCode  string
	ActorID    uuid.UUID
	Items      []models.Item
}

// LineFailure records a line that could not be fully applied.
type LineFailure struct {
	ItemID string
	Stage  string
	Err    error
}

func (f LineFailure) Error() string {
	return fmt.Sprintf("item %s: %s: %v", f.ItemID, f.Stage, f.Err)
}

// Report summarises one Apply call.
type Report struct {
	Adjusted []models.StockMovement
	Skipped  []string
	Failures []LineFailure
}

// Applier decrements tracked stock when an order is fulfilled.
type Applier struct {
	store CatalogueStore
	log   *zap.Logger
}

func NewApplier(store CatalogueStore, log *zap.Logger) *Applier {
	return &Applier{store: store, log: log}
}

// Apply processes every line independently and never fails as a whole: the
// order status is already committed when it runs. Problems are returned in
// the report and logged.
func (a *Applier) Apply(ctx context.Context, in ApplyInput) Report {
	rep := Report{
		Adjusted: []models.StockMovement{},
		Skipped:  []string{},
		Failures: []LineFailure{},
	}
	for _, line := range in.Items {
		a.applyLine(ctx, in, line, &rep)
	}
	for _, f := range rep.Failures {
		metrics.OperationErrorsTotal.WithLabelValues("inventory_" + f.Stage).Inc()
		a.log.Warn("inventory line not applied",
			zap.String("order_id", in.OrderID.String()),
			zap.String("item_id", f.ItemID),
			zap.String("stage", f.Stage),
			zap.Error(f.Err),
		)
	}
	return rep
}

func (a *Applier) applyLine(ctx context.Context, in ApplyInput, line models.Item, rep *Report) {
	itemID, err := uuid.Parse(line.ID)
	if err != nil || line.Qty <= 0 {
		rep.Skipped = append(rep.Skipped, line.ID)
		return
	}

	item, err := a.store.GetCatalogueItem(ctx, in.LocationID, itemID)
	if err != nil {
		rep.Skipped = append(rep.Skipped, line.ID)
		if !errors.Is(err, store.ErrNotFound) {
			rep.Failures = append(rep.Failures, LineFailure{ItemID: line.ID, Stage: StageLookup, Err: err})
		}
		return
	}
	if !item.TrackInventory {
		rep.Skipped = append(rep.Skipped, line.ID)
		return
	}

	before := item.StockQty
	delta := -int32(orderedQty(line.Qty))
	after := int32(max(int64(before)-int64(line.Qty), 0))

	item.StockQty = after
	item.StockStatus = models.StockStatusFor(after, item.LowStockThreshold)
	item.IsAvailable = item.StockStatus != enum.StockStatusOutOfStock

	if err := a.store.UpdateCatalogueStock(ctx, item); err != nil {
		rep.Failures = append(rep.Failures, LineFailure{ItemID: line.ID, Stage: StageUpdate, Err: err})
		return
	}

	movementType := enum.MovementDecrease
	if after == 0 && before > 0 {
		movementType = enum.MovementStockout
	}
	mv, err := a.store.InsertStockMovement(ctx, models.StockMovement{
		ItemID:       item.ID,
		LocationID:   in.LocationID,
		MovementType: movementType,
		QtyDelta:     delta,
		QtyBefore:    before,
		QtyAfter:     after,
		Reason:       "Order " + in.OrderCode + " fulfilled",
		ActorID:      in.ActorID,
	})
	if err != nil {
		rep.Failures = append(rep.Failures, LineFailure{ItemID: line.ID, Stage: StageMovement, Err: err})
		return
	}
	metrics.StockAdjustmentsTotal.WithLabelValues(movementType).Inc()
	rep.Adjusted = append(rep.Adjusted, mv)
}

// orderedQty bounds a line quantity to what a movement row can record.
func orderedQty(qty int) int64 {
	return min(int64(qty), math.MaxInt32)
}
