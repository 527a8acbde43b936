package models

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Stock statuses, derived from quantity vs threshold.
const (
	StockStatusInStock    = "in_stock"
	StockStatusLowStock   = "low_stock"
	StockStatusOutOfStock = "out_of_stock"
)

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Payment statuses
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Shipment statuses
const (
	ShipmentStatusPending   = "pending"
	ShipmentStatusPickedUp  = "picked_up"
	ShipmentStatusInTransit = "in_transit"
	ShipmentStatusDelivered = "delivered"
	ShipmentStatusCancelled = "cancelled"
)

// Order management priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Bulk operation types
const (
	BulkOpStatusUpdate  = "status_update"
	BulkOpCourierAssign = "courier_assign"
	BulkOpLabelGenerate = "label_generate"
)

// Bulk operation statuses
const (
	BulkStatusPending    = "pending"
	BulkStatusProcessing = "processing"
	BulkStatusCompleted  = "completed"
	BulkStatusFailed     = "failed"
)

// Inventory alert types
const (
	AlertTypeLowStock   = "low_stock"
	AlertTypeOutOfStock = "out_of_stock"
)

// Inventory alert statuses
const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
	AlertStatusDismissed    = "dismissed"
)

// Product represents a catalog product with pricing and stock fields
type Product struct {
	ID                int64               `db:"id" json:"id"`
	SKU               string              `db:"sku" json:"sku"`
	Slug              string              `db:"slug" json:"slug"`
	Name              string              `db:"name" json:"name"`
	RegularPrice      decimal.Decimal     `db:"regular_price" json:"regular_price"`
	OfferPrice        decimal.NullDecimal `db:"offer_price" json:"offer_price,omitempty"`
	StockQuantity     int                 `db:"stock_quantity" json:"stock_quantity"`
	LowStockThreshold int                 `db:"low_stock_threshold" json:"low_stock_threshold"`
	StockStatus       string              `db:"stock_status" json:"stock_status"`
	IsActive          bool                `db:"is_active" json:"is_active"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

// EffectivePrice returns the offer price when set, otherwise the regular price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.OfferPrice.Valid {
		return p.OfferPrice.Decimal
	}
	return p.RegularPrice
}

// InStock reports whether any units are available.
func (p *Product) InStock() bool {
	return p.StockQuantity > 0
}

// StockStatusFor derives the stock status from quantity and threshold.
// qty=0 is out_of_stock, 0<qty<=threshold is low_stock, else in_stock.
func StockStatusFor(quantity, threshold int) string {
	switch {
	case quantity == 0:
		return StockStatusOutOfStock
	case quantity <= threshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// Cart is owned by exactly one of an authenticated user or an anonymous
// session key.
type Cart struct {
	ID         int64          `db:"id" json:"id"`
	UserID     sql.NullInt64  `db:"user_id" json:"user_id,omitempty"`
	SessionKey sql.NullString `db:"session_key" json:"session_key,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// CartItem holds one product line in a cart. At most one row exists per
// (cart, product).
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	CartID    int64     `db:"cart_id" json:"cart_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order is a persisted customer order. Customer and shipping fields are
// snapshots copied at creation time.
type Order struct {
	ID                 int64           `db:"id" json:"id"`
	OrderNumber        string          `db:"order_number" json:"order_number"`
	UserID             sql.NullInt64   `db:"user_id" json:"user_id,omitempty"`
	Status             string          `db:"status" json:"status"`
	PaymentStatus      string          `db:"payment_status" json:"payment_status"`
	CustomerName       string          `db:"customer_name" json:"customer_name"`
	CustomerEmail      string          `db:"customer_email" json:"customer_email"`
	CustomerPhone      string          `db:"customer_phone" json:"customer_phone"`
	ShippingAddress    string          `db:"shipping_address" json:"shipping_address"`
	ShippingCity       string          `db:"shipping_city" json:"shipping_city"`
	ShippingPostalCode string          `db:"shipping_postal_code" json:"shipping_postal_code"`
	ShippingCost       decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	Subtotal           decimal.Decimal `db:"subtotal" json:"subtotal"`
	DiscountAmount     decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TotalAmount        decimal.Decimal `db:"total_amount" json:"total_amount"`
	Notes              string          `db:"notes" json:"notes"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// NewOrderNumber generates a globally unique order number: a fixed "GS"
// prefix followed by 8 uppercase hex characters.
func NewOrderNumber() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "GS" + strings.ToUpper(hex.EncodeToString(buf))
}

// OrderItem is a frozen snapshot of a product line at order time.
// TotalPrice always equals UnitPrice * Quantity.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	ProductSKU  string          `db:"product_sku" json:"product_sku"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"total_price"`
}

// Shipment tracks a courier shipment, 1:1 with its order.
type Shipment struct {
	ID             int64        `db:"id" json:"id"`
	OrderID        int64        `db:"order_id" json:"order_id"`
	CourierName    string       `db:"courier_name" json:"courier_name"`
	TrackingNumber string       `db:"tracking_number" json:"tracking_number"`
	Status         string       `db:"status" json:"status"`
	PickupDate     sql.NullTime `db:"pickup_date" json:"pickup_date,omitempty"`
	DeliveryDate   sql.NullTime `db:"delivery_date" json:"delivery_date,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// OrderManagement holds back-office metadata for an order, 1:1 and created
// lazily on first agent touch.
type OrderManagement struct {
	ID                     int64          `db:"id" json:"id"`
	OrderID                int64          `db:"order_id" json:"order_id"`
	AssignedAgent          sql.NullString `db:"assigned_agent" json:"assigned_agent,omitempty"`
	Priority               string         `db:"priority" json:"priority"`
	ProcessingNotes        string         `db:"processing_notes" json:"processing_notes"`
	QualityChecked         bool           `db:"quality_checked" json:"quality_checked"`
	QualityCheckedBy       sql.NullString `db:"quality_checked_by" json:"quality_checked_by,omitempty"`
	CourierAssigned        string         `db:"courier_assigned" json:"courier_assigned"`
	TrackingNumber         string         `db:"tracking_number" json:"tracking_number"`
	ShippingLabelGenerated bool           `db:"shipping_label_generated" json:"shipping_label_generated"`
	ProcessingStartedAt    sql.NullTime   `db:"processing_started_at" json:"processing_started_at,omitempty"`
	ShippedAt              sql.NullTime   `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt            sql.NullTime   `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
}

// BulkOrderOperation tracks one batch of independent per-order actions.
// Counters only ever grow, and only its owning runner writes to it.
type BulkOrderOperation struct {
	ID              int64        `db:"id" json:"id"`
	OperationType   string       `db:"operation_type" json:"operation_type"`
	Status          string       `db:"status" json:"status"`
	CreatedBy       string       `db:"created_by" json:"created_by"`
	TotalOrders     int          `db:"total_orders" json:"total_orders"`
	ProcessedOrders int          `db:"processed_orders" json:"processed_orders"`
	FailedOrders    int          `db:"failed_orders" json:"failed_orders"`
	OperationParams []byte       `db:"operation_params" json:"operation_params"`
	Results         []byte       `db:"results" json:"results"`
	ErrorLog        string       `db:"error_log" json:"error_log"`
	StartedAt       sql.NullTime `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     sql.NullTime `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

// InventoryAlert records a stock-level alert. At most one active alert may
// exist per (product, alert_type); alerts are never deleted.
type InventoryAlert struct {
	ID             int64          `db:"id" json:"id"`
	ProductID      int64          `db:"product_id" json:"product_id"`
	AlertType      string         `db:"alert_type" json:"alert_type"`
	Status         string         `db:"status" json:"status"`
	Message        string         `db:"message" json:"message"`
	CurrentStock   int            `db:"current_stock" json:"current_stock"`
	ThresholdValue int            `db:"threshold_value" json:"threshold_value"`
	AcknowledgedBy sql.NullString `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt sql.NullTime   `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ResolvedAt     sql.NullTime   `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// Customer is the CRM view of a buyer, keyed by email. The statistics fields
// are derived and recomputable from the order history at any time.
type Customer struct {
	ID                int64           `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	Email             string          `db:"email" json:"email"`
	Phone             string          `db:"phone" json:"phone"`
	Address           string          `db:"address" json:"address"`
	City              string          `db:"city" json:"city"`
	PostalCode        string          `db:"postal_code" json:"postal_code"`
	TotalOrders       int             `db:"total_orders" json:"total_orders"`
	TotalSpent        decimal.Decimal `db:"total_spent" json:"total_spent"`
	AverageOrderValue decimal.Decimal `db:"average_order_value" json:"average_order_value"`
	LastOrderDate     sql.NullTime    `db:"last_order_date" json:"last_order_date,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// ValidOrderStatus reports whether s is one of the enumerated order statuses.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled,
		OrderStatusRefunded:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is one of the enumerated payment
// statuses.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed,
		PaymentStatusRefunded:
		return true
	}
	return false
}
