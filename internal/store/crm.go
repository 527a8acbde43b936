package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Aiosol/grandshop/internal/models"

	"github.com/shopspring/decimal"
)

// EnsureOrderManagement returns the management record for an order, creating
// it lazily. The unique constraint on order_id keeps the relation 1:1 even
// under concurrent callers.
func (s *Store) EnsureOrderManagement(ctx context.Context, orderID int64) (*models.OrderManagement, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_management (order_id, priority)
		VALUES ($1, 'normal')
		ON CONFLICT (order_id) DO NOTHING`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure order management: %w", err)
	}

	var mgmt models.OrderManagement
	err = s.db.GetContext(ctx, &mgmt,
		"SELECT * FROM order_management WHERE order_id = $1", orderID)
	if err != nil {
		return nil, err
	}
	return &mgmt, nil
}

// GetOrderManagement retrieves the management record for an order
func (s *Store) GetOrderManagement(ctx context.Context, orderID int64) (*models.OrderManagement, error) {
	var mgmt models.OrderManagement
	err := s.db.GetContext(ctx, &mgmt,
		"SELECT * FROM order_management WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("management for order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &mgmt, nil
}

// AssignCourier records the courier choice on the management record.
func (s *Store) AssignCourier(ctx context.Context, orderID int64, courier, trackingNumber string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE order_management
		SET courier_assigned = $1, tracking_number = $2, updated_at = NOW()
		WHERE order_id = $3`,
		courier, trackingNumber, orderID)
	return err
}

// SetQualityChecked flips the quality-check flag.
func (s *Store) SetQualityChecked(ctx context.Context, orderID int64, checkedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE order_management
		SET quality_checked = TRUE, quality_checked_by = $1, updated_at = NOW()
		WHERE order_id = $2`,
		checkedBy, orderID)
	return err
}

// MarkLabelGenerated flips the shipping-label flag.
func (s *Store) MarkLabelGenerated(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE order_management
		SET shipping_label_generated = TRUE, updated_at = NOW()
		WHERE order_id = $1`,
		orderID)
	return err
}

// SetPriority sets the management priority.
func (s *Store) SetPriority(ctx context.Context, orderID int64, priority string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE order_management
		SET priority = $1, updated_at = NOW()
		WHERE order_id = $2`,
		priority, orderID)
	return err
}

// StampLifecycle writes one of the lifecycle timestamp columns. column must
// be one of the fixed names, never caller input.
func (s *Store) StampLifecycle(ctx context.Context, orderID int64, column string, ts time.Time) error {
	switch column {
	case "processing_started_at", "shipped_at", "delivered_at":
	default:
		return fmt.Errorf("unknown lifecycle column: %s", column)
	}
	query := fmt.Sprintf(
		"UPDATE order_management SET %s = $1, updated_at = NOW() WHERE order_id = $2", column)
	_, err := s.db.ExecContext(ctx, query, ts, orderID)
	return err
}

// CreateBulkOperation inserts a new bulk operation tracking record.
func (s *Store) CreateBulkOperation(ctx context.Context, op *models.BulkOrderOperation) error {
	query := `
		INSERT INTO bulk_order_operations (
			operation_type, status, created_by, total_orders, operation_params)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		op.OperationType, op.Status, op.CreatedBy, op.TotalOrders, op.OperationParams,
	).Scan(&op.ID, &op.CreatedAt)
}

// GetBulkOperation retrieves a bulk operation by ID
func (s *Store) GetBulkOperation(ctx context.Context, id int64) (*models.BulkOrderOperation, error) {
	var op models.BulkOrderOperation
	err := s.db.GetContext(ctx, &op,
		"SELECT * FROM bulk_order_operations WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bulk operation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// StartBulkOperation moves the record to processing and stamps started_at.
func (s *Store) StartBulkOperation(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bulk_order_operations
		SET status = 'processing', started_at = NOW()
		WHERE id = $1`, id)
	return err
}

// FinishBulkOperation writes the final counters, results and status.
func (s *Store) FinishBulkOperation(ctx context.Context, op *models.BulkOrderOperation) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bulk_order_operations
		SET status = $1, processed_orders = $2, failed_orders = $3,
		    results = $4, error_log = $5, completed_at = NOW()
		WHERE id = $6`,
		op.Status, op.ProcessedOrders, op.FailedOrders,
		op.Results, op.ErrorLog, op.ID)
	return err
}

// FailBulkOperation marks an operation failed before its loop could start.
func (s *Store) FailBulkOperation(ctx context.Context, id int64, errorLog string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bulk_order_operations
		SET status = 'failed', error_log = $1, completed_at = NOW()
		WHERE id = $2`,
		errorLog, id)
	return err
}

// HasActiveAlert reports whether an active alert of the given type exists for
// the product.
func (s *Store) HasActiveAlert(ctx context.Context, productID int64, alertType string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM inventory_alerts
			WHERE product_id = $1 AND alert_type = $2 AND status = 'active')`,
		productID, alertType)
	return exists, err
}

// CreateInventoryAlert inserts an alert unless an active one of the same type
// already exists. The partial unique index makes the insert race-safe;
// returns true when a row was actually created.
func (s *Store) CreateInventoryAlert(ctx context.Context, alert *models.InventoryAlert) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_alerts (
			product_id, alert_type, status, message, current_stock, threshold_value)
		VALUES ($1, $2, 'active', $3, $4, $5)
		ON CONFLICT (product_id, alert_type) WHERE status = 'active' DO NOTHING`,
		alert.ProductID, alert.AlertType, alert.Message,
		alert.CurrentStock, alert.ThresholdValue)
	if err != nil {
		return false, fmt.Errorf("failed to create inventory alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetInventoryAlert retrieves an alert by ID
func (s *Store) GetInventoryAlert(ctx context.Context, id int64) (*models.InventoryAlert, error) {
	var alert models.InventoryAlert
	err := s.db.GetContext(ctx, &alert,
		"SELECT * FROM inventory_alerts WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListInventoryAlerts retrieves alerts by status, newest first
func (s *Store) ListInventoryAlerts(ctx context.Context, status string) ([]models.InventoryAlert, error) {
	var alerts []models.InventoryAlert
	err := s.db.SelectContext(ctx, &alerts,
		"SELECT * FROM inventory_alerts WHERE status = $1 ORDER BY created_at DESC", status)
	return alerts, err
}

// AcknowledgeAlert moves an active alert to acknowledged.
func (s *Store) AcknowledgeAlert(ctx context.Context, alertID int64, agent string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_alerts
		SET status = 'acknowledged', acknowledged_by = $1, acknowledged_at = NOW()
		WHERE id = $2 AND status = 'active'`,
		agent, alertID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("active alert %d: %w", alertID, ErrNotFound)
	}
	return nil
}

// ResolveAlert moves an active or acknowledged alert to resolved.
func (s *Store) ResolveAlert(ctx context.Context, alertID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_alerts
		SET status = 'resolved', resolved_at = NOW()
		WHERE id = $1 AND status IN ('active', 'acknowledged')`,
		alertID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("open alert %d: %w", alertID, ErrNotFound)
	}
	return nil
}

// DismissAlert moves an active alert to dismissed.
func (s *Store) DismissAlert(ctx context.Context, alertID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_alerts
		SET status = 'dismissed'
		WHERE id = $1 AND status = 'active'`,
		alertID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("active alert %d: %w", alertID, ErrNotFound)
	}
	return nil
}

// GetCustomerByID retrieves a customer by ID
func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer, "SELECT * FROM customers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetCustomerByEmail retrieves a customer by email
func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer, "SELECT * FROM customers WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// UpsertCustomer creates or refreshes a customer record from an order
// snapshot, keyed by email.
func (s *Store) UpsertCustomer(ctx context.Context, customer *models.Customer) error {
	query := `
		INSERT INTO customers (name, email, phone, address, city, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email)
		DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone,
		              address = EXCLUDED.address, city = EXCLUDED.city,
		              updated_at = NOW()
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		customer.Name, customer.Email, customer.Phone,
		customer.Address, customer.City, customer.PostalCode,
	).Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
}

// OrderAggregate is the direct aggregation of a customer's order history.
type OrderAggregate struct {
	TotalOrders   int                 `db:"total_orders"`
	TotalSpent    decimal.NullDecimal `db:"total_spent"`
	LastOrderDate sql.NullTime        `db:"last_order_date"`
}

// AggregateOrdersByEmail computes order count, spend and latest order date
// for a customer email in one query.
func (s *Store) AggregateOrdersByEmail(ctx context.Context, email string) (*OrderAggregate, error) {
	var agg OrderAggregate
	err := s.db.GetContext(ctx, &agg, `
		SELECT COUNT(*) AS total_orders,
		       SUM(total_amount) AS total_spent,
		       MAX(created_at) AS last_order_date
		FROM orders WHERE customer_email = $1`, email)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// UpdateCustomerStats writes the derived statistics columns.
func (s *Store) UpdateCustomerStats(ctx context.Context, customer *models.Customer) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET total_orders = $1, total_spent = $2, average_order_value = $3,
		    last_order_date = $4, updated_at = NOW()
		WHERE id = $5`,
		customer.TotalOrders, customer.TotalSpent, customer.AverageOrderValue,
		customer.LastOrderDate, customer.ID)
	return err
}

// ListCustomerEmailsFromOrders returns the distinct customer emails present
// in the order history. Used by the customer sync job.
func (s *Store) ListCustomerEmailsFromOrders(ctx context.Context) ([]string, error) {
	var emails []string
	err := s.db.SelectContext(ctx, &emails,
		"SELECT DISTINCT customer_email FROM orders ORDER BY customer_email")
	return emails, err
}

// LatestOrderSnapshotByEmail returns the newest order for an email, used to
// seed customer identity fields during sync.
func (s *Store) LatestOrderSnapshotByEmail(ctx context.Context, email string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		SELECT * FROM orders
		WHERE customer_email = $1
		ORDER BY created_at DESC LIMIT 1`, email)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("orders for %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
