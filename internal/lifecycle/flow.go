package lifecycle

import "github.com/partnerdesk/api/internal/enum"

// Edge is one legal move out of a status.
type Edge struct {
	To string
	// TimestampField is the column stamped on first entry to To.
	TimestampField string
	// Fulfils marks the edge that hands the goods over to the customer.
	Fulfils bool
}

// Flow is a fixed, acyclic order or booking lifecycle.
type Flow struct {
	Name        string
	Slug        string
	Table       string
	PartnerType string
	Initial     []string
	Terminal    []string
	// Edges is keyed by current status.
	Edges map[string][]Edge
	// TracksInventory enables stock decrement on the fulfilment edge.
	TracksInventory bool
}

// Timestamp columns shared by every order table.
const (
	FieldAcceptedAt  = "accepted_at"
	FieldPreparingAt = "preparing_at"
	FieldReadyAt     = "ready_at"
	FieldCompletedAt = "completed_at"
	FieldPickedUpAt  = "picked_up_at"
	FieldDeliveredAt = "delivered_at"
	FieldCancelledAt = "cancelled_at"
	FieldRejectedAt  = "rejected_at"
	FieldConfirmedAt = "confirmed_at"
	FieldNoShowAt    = "no_show_at"
	FieldPaidAt      = "paid_at"
	FieldRefundedAt  = "refunded_at"
)

func cancel(to, field string) Edge { return Edge{To: to, TimestampField: field} }

var TableOrders = &Flow{
	Name:        "restaurant table orders",
	Slug:        "table-orders",
	Table:       enum.TableTableOrders,
	PartnerType: enum.PartnerRestaurant,
	Initial:     []string{enum.TableOrderPlaced},
	Terminal:    []string{enum.TableOrderCompleted, enum.TableOrderCancelled},
	Edges: map[string][]Edge{
		enum.TableOrderPlaced: {
			{To: enum.TableOrderAccepted, TimestampField: FieldAcceptedAt},
			cancel(enum.TableOrderCancelled, FieldCancelledAt),
		},
		enum.TableOrderAccepted: {
			{To: enum.TableOrderPreparing, TimestampField: FieldPreparingAt},
			cancel(enum.TableOrderCancelled, FieldCancelledAt),
		},
		enum.TableOrderPreparing: {
			{To: enum.TableOrderReady, TimestampField: FieldReadyAt},
			cancel(enum.TableOrderCancelled, FieldCancelledAt),
		},
		enum.TableOrderReady: {
			{To: enum.TableOrderCompleted, TimestampField: FieldCompletedAt, Fulfils: true},
			cancel(enum.TableOrderCancelled, FieldCancelledAt),
		},
	},
}

var PickupOrders = &Flow{
	Name:        "restaurant pickup orders",
	Slug:        "pickup-orders",
	Table:       enum.TablePickupOrders,
	PartnerType: enum.PartnerRestaurant,
	Initial:     []string{enum.PickupOrderNew},
	Terminal:    []string{enum.PickupOrderPickedUp, enum.PickupOrderCancelled},
	Edges: map[string][]Edge{
		enum.PickupOrderNew: {
			{To: enum.PickupOrderAccepted, TimestampField: FieldAcceptedAt},
			cancel(enum.PickupOrderCancelled, FieldCancelledAt),
		},
		enum.PickupOrderAccepted: {
			{To: enum.PickupOrderPreparing, TimestampField: FieldPreparingAt},
			cancel(enum.PickupOrderCancelled, FieldCancelledAt),
		},
		enum.PickupOrderPreparing: {
			{To: enum.PickupOrderReadyForPickup, TimestampField: FieldReadyAt},
			cancel(enum.PickupOrderCancelled, FieldCancelledAt),
		},
		enum.PickupOrderReadyForPickup: {
			{To: enum.PickupOrderPickedUp, TimestampField: FieldPickedUpAt, Fulfils: true},
			cancel(enum.PickupOrderCancelled, FieldCancelledAt),
		},
	},
}

func storeEdges() map[string][]Edge {
	accept := []Edge{
		{To: enum.StoreOrderAccepted, TimestampField: FieldAcceptedAt},
		cancel(enum.StoreOrderRejected, FieldRejectedAt),
	}
	return map[string][]Edge{
		enum.StoreOrderNew:    accept,
		enum.StoreOrderPlaced: accept,
		enum.StoreOrderAccepted: {
			{To: enum.StoreOrderPreparing, TimestampField: FieldPreparingAt},
			cancel(enum.StoreOrderRejected, FieldRejectedAt),
		},
		enum.StoreOrderPreparing: {
			{To: enum.StoreOrderReady, TimestampField: FieldReadyAt},
			cancel(enum.StoreOrderRejected, FieldRejectedAt),
		},
		enum.StoreOrderReady: {
			{To: enum.StoreOrderDelivered, TimestampField: FieldDeliveredAt, Fulfils: true},
			cancel(enum.StoreOrderRejected, FieldRejectedAt),
		},
	}
}

var StoreOrders = &Flow{
	Name:            "store pickup orders",
	Slug:            "store-orders",
	Table:           enum.TableStoreOrders,
	PartnerType:     enum.PartnerStore,
	Initial:         []string{enum.StoreOrderNew, enum.StoreOrderPlaced},
	Terminal:        []string{enum.StoreOrderDelivered, enum.StoreOrderRejected},
	Edges:           storeEdges(),
	TracksInventory: true,
}

var PaymentOrders = &Flow{
	Name:            "store payment orders",
	Slug:            "payment-orders",
	Table:           enum.TablePaymentOrders,
	PartnerType:     enum.PartnerStore,
	Initial:         []string{enum.StoreOrderNew, enum.StoreOrderPlaced},
	Terminal:        []string{enum.StoreOrderDelivered, enum.StoreOrderRejected},
	Edges:           storeEdges(),
	TracksInventory: true,
}

var Bookings = &Flow{
	Name:        "restaurant bookings",
	Slug:        "bookings",
	Table:       enum.TableBookings,
	PartnerType: enum.PartnerRestaurant,
	Initial:     []string{enum.BookingPending},
	Terminal:    []string{enum.BookingCompleted, enum.BookingCancelled, enum.BookingNoShow},
	Edges: map[string][]Edge{
		enum.BookingPending: {
			{To: enum.BookingConfirmed, TimestampField: FieldConfirmedAt},
			cancel(enum.BookingCancelled, FieldCancelledAt),
		},
		enum.BookingConfirmed: {
			{To: enum.BookingCompleted, TimestampField: FieldCompletedAt, Fulfils: true},
			cancel(enum.BookingCancelled, FieldCancelledAt),
			{To: enum.BookingNoShow, TimestampField: FieldNoShowAt},
		},
	},
}

// Payments is the payment_status sub-flow of payment orders. It runs
// independently of the fulfilment status.
var Payments = &Flow{
	Name:        "payment status",
	Slug:        "payment-status",
	Table:       enum.TablePaymentOrders,
	PartnerType: enum.PartnerStore,
	Initial:     []string{enum.PaymentStatusPending},
	Terminal:    []string{enum.PaymentStatusRefunded},
	Edges: map[string][]Edge{
		enum.PaymentStatusPending: {{To: enum.PaymentStatusPaid, TimestampField: FieldPaidAt}},
		enum.PaymentStatusPaid:    {{To: enum.PaymentStatusRefunded, TimestampField: FieldRefundedAt}},
	},
}

var listFlows = []*Flow{TableOrders, PickupOrders, Bookings, StoreOrders, PaymentOrders}

// Flows returns the partner-facing flows in display order.
func Flows() []*Flow {
	out := make([]*Flow, len(listFlows))
	copy(out, listFlows)
	return out
}

// FlowBySlug resolves a URL slug to its flow.
func FlowBySlug(slug string) (*Flow, bool) {
	for _, f := range listFlows {
		if f.Slug == slug {
			return f, true
		}
	}
	return nil, false
}

// IsBooking reports whether the flow is backed by the bookings table.
func (f *Flow) IsBooking() bool {
	return f.Table == enum.TableBookings
}

// Knows reports whether status is defined in the flow.
func (f *Flow) Knows(status string) bool {
	if _, ok := f.Edges[status]; ok {
		return true
	}
	return f.IsTerminal(status)
}

// IsTerminal reports whether status admits no outgoing transition.
func (f *Flow) IsTerminal(status string) bool {
	for _, s := range f.Terminal {
		if s == status {
			return true
		}
	}
	return false
}

// IsInitial reports whether status is one of the flow's entry states.
func (f *Flow) IsInitial(status string) bool {
	for _, s := range f.Initial {
		if s == status {
			return true
		}
	}
	return false
}

// TimestampFields lists every column the flow may stamp.
func (f *Flow) TimestampFields() []string {
	seen := make(map[string]bool)
	var fields []string
	for _, edges := range f.Edges {
		for _, e := range edges {
			if !seen[e.TimestampField] {
				seen[e.TimestampField] = true
				fields = append(fields, e.TimestampField)
			}
		}
	}
	return fields
}
