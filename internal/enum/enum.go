package enum

// ── Group A: State machines (CHECK constrained in DB) ──

// Restaurant table orders.
const (
	TableOrderPlaced    = "PLACED"
	TableOrderAccepted  = "ACCEPTED"
	TableOrderPreparing = "PREPARING"
	TableOrderReady     = "READY"
	TableOrderCompleted = "COMPLETED"
	TableOrderCancelled = "CANCELLED"
)

// Restaurant pickup orders.
const (
	PickupOrderNew            = "NEW"
	PickupOrderAccepted       = "ACCEPTED"
	PickupOrderPreparing      = "PREPARING"
	PickupOrderReadyForPickup = "READY_FOR_PICKUP"
	PickupOrderPickedUp       = "PICKED_UP"
	PickupOrderCancelled      = "CANCELLED"
)

// Store pickup and payment orders share one graph.
const (
	StoreOrderNew       = "NEW"
	StoreOrderPlaced    = "PLACED"
	StoreOrderAccepted  = "ACCEPTED"
	StoreOrderPreparing = "PREPARING"
	StoreOrderReady     = "READY"
	StoreOrderDelivered = "DELIVERED"
	StoreOrderRejected  = "REJECTED"
)

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
	BookingNoShow    = "no_show"
)

const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusRefunded = "REFUNDED"
)

// ── Group B: Derived / audit values ──

const (
	StockStatusInStock    = "in_stock"
	StockStatusLowStock   = "low_stock"
	StockStatusOutOfStock = "out_of_stock"
)

const (
	MovementDecrease = "DECREASE"
	MovementStockout = "STOCKOUT"
)

// Change feed event types, as emitted by the row triggers.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// ── Group C: Access ──

const (
	PartnerRestaurant = "RESTAURANT"
	PartnerStore      = "STORE"
	PartnerCorporate  = "CORPORATE"
)

const (
	RolePartner = "PARTNER"
	RoleAdmin   = "ADMIN"
)

// Tables backing each flow.
const (
	TableTableOrders   = "table_orders"
	TablePickupOrders  = "pickup_orders"
	TableStoreOrders   = "store_orders"
	TablePaymentOrders = "payment_orders"
	TableBookings      = "bookings"
)
