package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Aiosol/grandshop/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrderTx inserts a new order within the given transaction and fills in
// the generated fields.
func (s *Store) CreateOrderTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (
			order_number, user_id, status, payment_status,
			customer_name, customer_email, customer_phone,
			shipping_address, shipping_city, shipping_postal_code,
			shipping_cost, subtotal, discount_amount, total_amount, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`

	return tx.QueryRowxContext(ctx, query,
		order.OrderNumber, order.UserID, order.Status, order.PaymentStatus,
		order.CustomerName, order.CustomerEmail, order.CustomerPhone,
		order.ShippingAddress, order.ShippingCity, order.ShippingPostalCode,
		order.ShippingCost, order.Subtotal, order.DiscountAmount,
		order.TotalAmount, order.Notes,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

// CreateOrderItemTx inserts an order item snapshot within the transaction.
func (s *Store) CreateOrderItemTx(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (
			order_id, product_id, product_name, product_sku,
			quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return tx.QueryRowxContext(ctx, query,
		item.OrderID, item.ProductID, item.ProductName, item.ProductSKU,
		item.Quantity, item.UnitPrice, item.TotalPrice,
	).Scan(&item.ID)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByNumber retrieves an order by its order number
func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_number = $1", orderNumber)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", orderNumber, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByEmail retrieves orders for a customer email, newest first
func (s *Store) GetOrdersByEmail(ctx context.Context, email string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE customer_email = $1 ORDER BY created_at DESC", email)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// UpdateOrderStatus sets the order status.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return nil
}

// UpdatePaymentStatus sets the order's payment status.
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return nil
}

// CreateShipment inserts a shipment for an order. The unique constraint on
// order_id keeps shipments 1:1 with orders.
func (s *Store) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	query := `
		INSERT INTO shipments (order_id, courier_name, tracking_number, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		shipment.OrderID, shipment.CourierName, shipment.TrackingNumber, shipment.Status,
	).Scan(&shipment.ID, &shipment.CreatedAt, &shipment.UpdatedAt)
}

// GetShipmentByOrderID retrieves the shipment for an order
func (s *Store) GetShipmentByOrderID(ctx context.Context, orderID int64) (*models.Shipment, error) {
	var shipment models.Shipment
	err := s.db.GetContext(ctx, &shipment,
		"SELECT * FROM shipments WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shipment for order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}
