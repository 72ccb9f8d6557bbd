package view

import (
	"time"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/models"
	"github.com/shopspring/decimal"
)

// Row is one list entry as rendered by the dashboard, for orders and
// bookings alike.
type Row struct {
	ID            uuid.UUID             `json:"id"`
	Code          string                `json:"code"`
	CustomerName  string                `json:"customer_name"`
	CustomerPhone string                `json:"customer_phone"`
	Status        string                `json:"status"`
	PaymentStatus string                `json:"payment_status,omitempty"`
	TableNumber   *string               `json:"table_number,omitempty"`
	PartySize     int32                 `json:"party_size,omitempty"`
	BookingAt     *time.Time            `json:"booking_at,omitempty"`
	Notes         *string               `json:"notes,omitempty"`
	Items         []models.Item         `json:"items,omitempty"`
	TotalAmount   *decimal.Decimal      `json:"total_amount,omitempty"`
	Read          bool                  `json:"read"`
	PartnerSeenAt *time.Time            `json:"partner_seen_at"`
	CancelReason  *string               `json:"cancel_reason"`
	Timestamps    map[string]*time.Time `json:"timestamps"`
	// Actions lists the statuses reachable in one step; the dashboard only
	// renders controls for these.
	Actions        []string  `json:"actions"`
	PaymentActions []string  `json:"payment_actions,omitempty"`
	Saving         bool      `json:"saving"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OrderRow renders an order of flow.
func OrderRow(flow *lifecycle.Flow, o models.Order) Row {
	total := o.TotalAmount
	r := Row{
		ID:            o.ID,
		Code:          o.OrderCode,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Status:        o.Status,
		TableNumber:   o.TableNumber,
		Items:         o.Items,
		TotalAmount:   &total,
		Read:          o.Read,
		PartnerSeenAt: o.PartnerSeenAt,
		CancelReason:  o.CancelReason,
		Timestamps:    copyTimestamps(o.Timestamps),
		Actions:       lifecycle.Successors(flow, o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if flow == lifecycle.PaymentOrders {
		r.PaymentStatus = o.PaymentStatus
		r.PaymentActions = lifecycle.Successors(lifecycle.Payments, o.PaymentStatus)
	}
	return r
}

// BookingRow renders a booking.
func BookingRow(b models.Booking) Row {
	at := b.BookingAt
	return Row{
		ID:            b.ID,
		Code:          b.BookingCode,
		CustomerName:  b.CustomerName,
		CustomerPhone: b.CustomerPhone,
		Status:        b.Status,
		PartySize:     b.PartySize,
		BookingAt:     &at,
		Notes:         b.Notes,
		Read:          b.Read,
		PartnerSeenAt: b.PartnerSeenAt,
		CancelReason:  b.CancelReason,
		Timestamps:    copyTimestamps(b.Timestamps),
		Actions:       lifecycle.Successors(lifecycle.Bookings, b.Status),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func copyTimestamps(ts map[string]*time.Time) map[string]*time.Time {
	out := make(map[string]*time.Time, len(ts))
	for k, v := range ts {
		out[k] = v
	}
	return out
}
