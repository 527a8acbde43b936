package service

import (
	"context"
	"testing"
	"time"

	"github.com/Aiosol/grandshop/config"
	"github.com/Aiosol/grandshop/internal/broker"
	"github.com/Aiosol/grandshop/internal/models"
	"github.com/Aiosol/grandshop/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink collects published events instead of writing to Kafka.
type memorySink struct {
	events []interface{}
}

func (m *memorySink) PublishEvent(ctx context.Context, key string, event interface{}) error {
	m.events = append(m.events, event)
	return nil
}

func newMockOrderService(t *testing.T) (*OrderService, sqlmock.Sqlmock, *memorySink) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sink := &memorySink{}
	s := NewOrderService(
		store.NewWithDB(sqlx.NewDb(mockDB, "postgres")),
		nil,
		broker.NewEventPublisher(sink),
		&CourierRegistry{clients: map[string]CourierClient{}},
		config.BusinessConfig{
			ShippingCost:         decimal.RequireFromString("50.00"),
			DefaultLowStockLimit: 5,
			BuyNowTTLSeconds:     1800,
		},
	)
	return s, mock, sink
}

func productColumns() []string {
	return []string{
		"id", "sku", "slug", "name", "regular_price", "offer_price",
		"stock_quantity", "low_stock_threshold", "stock_status", "is_active",
		"created_at", "updated_at",
	}
}

func addProductRow(rows *sqlmock.Rows, id int64, sku string, price string, offer interface{}, stock int) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, sku, sku, "Part "+sku, price, offer,
		stock, 5, models.StockStatusInStock, true, now, now)
}

var (
	testCustomer = CustomerInfo{Name: "Rahim Uddin", Email: "rahim@example.com", Phone: "01700000000"}
	testShipping = ShippingInfo{Address: "12 Motijheel C/A", City: "Dhaka", PostalCode: "1000"}
)

func TestCreateOrderFromSingleItem(t *testing.T) {
	s, mock, sink := newMockOrderService(t)
	ctx := context.Background()

	// Offer price 150.00 wins over regular 200.00; 3 units plus 50.00
	// shipping lands on 500.00.
	mock.ExpectQuery(`SELECT \* FROM products WHERE id = \$1 AND is_active`).
		WithArgs(int64(1)).
		WillReturnRows(addProductRow(sqlmock.NewRows(productColumns()), 1, "BP-100", "200.00", "150.00", 10))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(11), time.Now(), time.Now()))
	mock.ExpectQuery(`INSERT INTO order_items`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
	mock.ExpectExec(`UPDATE products`).
		WithArgs(3, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := s.CreateOrderFromSingleItem(ctx, 1, 3, testCustomer, testShipping, "", "")
	require.NoError(t, err)

	assert.Regexp(t, `^GS[0-9A-F]{8}$`, order.OrderNumber)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.True(t, decimal.RequireFromString("450.00").Equal(order.Subtotal), order.Subtotal.String())
	assert.True(t, decimal.RequireFromString("500.00").Equal(order.TotalAmount), order.TotalAmount.String())

	// OrderCreated plus one StockChanged per line.
	require.Len(t, sink.events, 2)
	created, ok := sink.events[0].(*models.OrderCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(11), created.OrderID)
	require.Len(t, created.Items, 1)
	assert.Equal(t, 3, created.Items[0].Quantity)

	stock, ok := sink.events[1].(*models.StockChangedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(1), stock.ProductID)
	assert.Equal(t, 7, stock.NewQuantity)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderFromSingleItemInsufficientStock(t *testing.T) {
	s, mock, sink := newMockOrderService(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM products WHERE id = \$1 AND is_active`).
		WithArgs(int64(1)).
		WillReturnRows(addProductRow(sqlmock.NewRows(productColumns()), 1, "BP-100", "200.00", nil, 2))

	_, err := s.CreateOrderFromSingleItem(ctx, 1, 5, testCustomer, testShipping, "", "")
	require.Error(t, err)
	assert.True(t, IsStockInsufficient(err))

	var stockErr *StockInsufficientError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)

	assert.Empty(t, sink.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderFromCartAllOrNothing(t *testing.T) {
	s, mock, sink := newMockOrderService(t)
	ctx := context.Background()

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM cart_items WHERE cart_id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cart_id", "product_id", "quantity", "created_at", "updated_at"}).
			AddRow(int64(31), int64(3), int64(1), 2, now, now).
			AddRow(int64(32), int64(3), int64(2), 1, now, now))

	rows := sqlmock.NewRows(productColumns())
	addProductRow(rows, 1, "BP-100", "200.00", nil, 10)
	addProductRow(rows, 2, "OF-200", "300.00", nil, 5)
	mock.ExpectQuery(`SELECT \* FROM products WHERE id IN`).
		WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(12), now, now))
	mock.ExpectQuery(`INSERT INTO order_items`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))
	mock.ExpectExec(`UPDATE products`).
		WithArgs(2, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO order_items`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	// Second line lost the race: zero rows updated rolls the whole order back.
	mock.ExpectExec(`UPDATE products`).
		WithArgs(1, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.CreateOrderFromCart(ctx, 3, testCustomer, testShipping, "", "")
	require.Error(t, err)
	assert.True(t, IsStockInsufficient(err))

	assert.Empty(t, sink.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderValidation(t *testing.T) {
	s, mock, _ := newMockOrderService(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM products WHERE id = \$1 AND is_active`).
		WithArgs(int64(1)).
		WillReturnRows(addProductRow(sqlmock.NewRows(productColumns()), 1, "BP-100", "200.00", nil, 10))

	badCustomer := testCustomer
	badCustomer.Email = "not-an-email"

	_, err := s.CreateOrderFromSingleItem(ctx, 1, 1, badCustomer, testShipping, "", "")
	require.Error(t, err)

	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateCheckout(t *testing.T) {
	assert.NoError(t, validateCheckout(testCustomer, testShipping))

	missingName := testCustomer
	missingName.Name = "  "
	assert.Error(t, validateCheckout(missingName, testShipping))

	missingCity := testShipping
	missingCity.City = ""
	assert.Error(t, validateCheckout(testCustomer, missingCity))

	missingPhone := testCustomer
	missingPhone.Phone = ""
	assert.Error(t, validateCheckout(missingPhone, testShipping))
}
