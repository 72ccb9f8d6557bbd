package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is one row of any order table (table, pickup, store, payment).
type Order struct {
	ID            uuid.UUID
	LocationID    uuid.UUID
	OrderCode     string
	CustomerName  string
	CustomerPhone string
	TableNumber   *string
	Status        string
	PaymentStatus string
	Items         []Item
	TotalAmount   decimal.Decimal
	Read          bool
	PartnerSeenAt *time.Time
	CancelReason  *string
	Timestamps    map[string]*time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Item is one ordered line. The catalogue item is referenced by ID, not embedded.
type Item struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Qty   int             `json:"qty"`
	Price decimal.Decimal `json:"price"`
}

// ParseItems decodes an items column leniently. Anything that is not a JSON
// array yields no items; elements that fail to decode are dropped.
func ParseItems(raw []byte) []Item {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return []Item{}
	}
	items := make([]Item, 0, len(elems))
	for _, el := range elems {
		var it Item
		if err := json.Unmarshal(el, &it); err != nil {
			continue
		}
		if it.Qty < 0 {
			it.Qty = 0
		}
		items = append(items, it)
	}
	return items
}

// Booking is one row of the bookings table.
type Booking struct {
	ID            uuid.UUID
	LocationID    uuid.UUID
	BookingCode   string
	CustomerName  string
	CustomerPhone string
	PartySize     int32
	BookingAt     time.Time
	Notes         *string
	Status        string
	Read          bool
	PartnerSeenAt *time.Time
	CancelReason  *string
	Timestamps    map[string]*time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
