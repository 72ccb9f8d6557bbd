package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/enum"
	"github.com/shopspring/decimal"
)

// CatalogueItem is a menu or shelf item with optional stock tracking.
type CatalogueItem struct {
	ID                uuid.UUID
	LocationID        uuid.UUID
	Name              string
	Price             decimal.Decimal
	StockQty          int32
	TrackInventory    bool
	LowStockThreshold int32
	StockStatus       string
	IsAvailable       bool
	UpdatedAt         time.Time
}

// StockStatusFor derives the stock status of a quantity against a threshold.
func StockStatusFor(qty, lowThreshold int32) string {
	switch {
	case qty <= 0:
		return enum.StockStatusOutOfStock
	case qty <= lowThreshold:
		return enum.StockStatusLowStock
	default:
		return enum.StockStatusInStock
	}
}

// StockMovement is an append-only audit row. Never updated or deleted.
type StockMovement struct {
	ID           uuid.UUID
	ItemID       uuid.UUID
	LocationID   uuid.UUID
	MovementType string
	QtyDelta     int32
	QtyBefore    int32
	QtyAfter     int32
	Reason       string
	ActorID      uuid.UUID
	CreatedAt    time.Time
}
