package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Aiosol/grandshop/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewWithDB(sqlx.NewDb(mockDB, "postgres")), mock
}

func TestDecrementStockTx(t *testing.T) {
	t.Run("decrements when enough stock", func(t *testing.T) {
		s, mock := newMockStore(t)
		ctx := context.Background()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE products`).
			WithArgs(2, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := s.BeginTx(ctx)
		require.NoError(t, err)

		err = s.DecrementStockTx(ctx, tx, 7, 2)
		assert.NoError(t, err)
		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects when stock is short", func(t *testing.T) {
		s, mock := newMockStore(t)
		ctx := context.Background()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE products`).
			WithArgs(5, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		tx, err := s.BeginTx(ctx)
		require.NoError(t, err)

		err = s.DecrementStockTx(ctx, tx, 7, 5)
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateInventoryAlertDedup(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	alert := &models.InventoryAlert{
		ProductID:      42,
		AlertType:      models.AlertTypeLowStock,
		Message:        "Brake pads (BP-100) is low on stock: 3 left (threshold 5)",
		CurrentStock:   3,
		ThresholdValue: 5,
	}

	// First insert lands.
	mock.ExpectExec(`INSERT INTO inventory_alerts`).
		WithArgs(alert.ProductID, alert.AlertType, alert.Message,
			alert.CurrentStock, alert.ThresholdValue).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := s.CreateInventoryAlert(ctx, alert)
	require.NoError(t, err)
	assert.True(t, created)

	// Second insert hits ON CONFLICT DO NOTHING.
	mock.ExpectExec(`INSERT INTO inventory_alerts`).
		WithArgs(alert.ProductID, alert.AlertType, alert.Message,
			alert.CurrentStock, alert.ThresholdValue).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err = s.CreateInventoryAlert(ctx, alert)
	require.NoError(t, err)
	assert.False(t, created)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE orders`).
		WithArgs(models.OrderStatusShipped, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateOrderStatus(ctx, 99, models.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateOrdersByEmail(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	lastOrder := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"total_orders", "total_spent", "last_order_date"}).
		AddRow(3, "1500.00", lastOrder)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total_orders")).
		WithArgs("buyer@example.com").
		WillReturnRows(rows)

	agg, err := s.AggregateOrdersByEmail(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, agg.TotalOrders)
	assert.True(t, agg.TotalSpent.Valid)
	assert.True(t, decimal.NewFromInt(1500).Equal(agg.TotalSpent.Decimal))
	assert.Equal(t, lastOrder, agg.LastOrderDate.Time)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateOrdersByEmailNoOrders(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"total_orders", "total_spent", "last_order_date"}).
		AddRow(0, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total_orders")).
		WithArgs("nobody@example.com").
		WillReturnRows(rows)

	agg, err := s.AggregateOrdersByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, agg.TotalOrders)
	assert.False(t, agg.TotalSpent.Valid)
	assert.False(t, agg.LastOrderDate.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM orders WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetOrderByID(ctx, 404)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
