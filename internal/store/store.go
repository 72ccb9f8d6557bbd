package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/models"
)

// ListParams is the page-level query shape shared by every list view.
type ListParams struct {
	LocationIDs []uuid.UUID
	Status      string
	// Query is matched case-insensitively against name, phone and code.
	Query  string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// StatusUpdate persists one accepted transition.
type StatusUpdate struct {
	Table      string
	ID         uuid.UUID
	LocationID uuid.UUID
	// StatusColumn is "status" or "payment_status".
	StatusColumn   string
	Status         string
	TimestampField string
	CancelReason   *string
	MarkRead       bool
	At             time.Time
}

// OrderStore is the order-table side of the row store.
type OrderStore interface {
	ListOrders(ctx context.Context, table string, arg ListParams) ([]models.Order, int64, error)
	GetOrder(ctx context.Context, table string, locationID, id uuid.UUID) (models.Order, error)
}

// BookingStore is the bookings side of the row store.
type BookingStore interface {
	ListBookings(ctx context.Context, arg ListParams) ([]models.Booking, int64, error)
	GetBooking(ctx context.Context, locationID, id uuid.UUID) (models.Booking, error)
}

// StatusWriter mutates status-bearing rows in any flow table.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, arg StatusUpdate) error
	MarkSeen(ctx context.Context, table string, locationID, id uuid.UUID, at time.Time) error
	CountUnread(ctx context.Context, table string, locationIDs []uuid.UUID) (int64, error)
}

// CatalogueStore holds catalogue items and the stock movement log.
type CatalogueStore interface {
	GetCatalogueItem(ctx context.Context, locationID, id uuid.UUID) (models.CatalogueItem, error)
	UpdateCatalogueStock(ctx context.Context, item models.CatalogueItem) error
	InsertStockMovement(ctx context.Context, mv models.StockMovement) (models.StockMovement, error)
	ListCatalogue(ctx context.Context, locationID uuid.UUID) ([]models.CatalogueItem, error)
	ListStockMovements(ctx context.Context, locationID uuid.UUID, itemID *uuid.UUID, limit int) ([]models.StockMovement, error)
}

// Store is everything the service layer needs from the row store.
type Store interface {
	OrderStore
	BookingStore
	StatusWriter
	CatalogueStore
}
