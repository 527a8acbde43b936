package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated         = "ORDER_CREATED"
	EventTypeOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	EventTypePaymentStatusChanged = "PAYMENT_STATUS_CHANGED"
	EventTypeStockChanged         = "STOCK_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderItemData represents item data carried in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderCreatedEvent published when an order is persisted and stock is
// decremented
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerEmail string          `json:"customer_email"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published on order status transitions
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
}

// PaymentStatusChangedEvent published on payment status transitions
type PaymentStatusChangedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
}

// StockChangedEvent published after a stock mutation so the inventory
// alerting consumer can re-check the product
type StockChangedEvent struct {
	BaseEvent
	ProductID   int64  `json:"product_id"`
	NewQuantity int    `json:"new_quantity"`
	StockStatus string `json:"stock_status"`
}
