package service

import (
	"context"
	"testing"
	"time"

	"github.com/Aiosol/grandshop/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockCartService(t *testing.T) (*CartService, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewCartService(store.NewWithDB(sqlx.NewDb(mockDB, "postgres")), nil), mock
}

func cartItemColumns() []string {
	return []string{"id", "cart_id", "product_id", "quantity", "created_at", "updated_at"}
}

func TestAddItemClampsToStock(t *testing.T) {
	s, mock := newMockCartService(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM products WHERE id = \$1 AND is_active`).
		WithArgs(int64(1)).
		WillReturnRows(addProductRow(sqlmock.NewRows(productColumns()), 1, "BP-100", "200.00", nil, 4))

	mock.ExpectQuery(`SELECT \* FROM carts WHERE user_id = \$1`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "session_key", "created_at", "updated_at"}).
			AddRow(int64(3), int64(9), nil, now, now))

	// The upsert lands on 6 units; 4 are in stock so the line is clamped.
	mock.ExpectQuery(`INSERT INTO cart_items`).
		WithArgs(int64(3), int64(1), 6).
		WillReturnRows(sqlmock.NewRows(cartItemColumns()).
			AddRow(int64(31), int64(3), int64(1), 6, now, now))
	mock.ExpectExec(`UPDATE cart_items SET quantity`).
		WithArgs(4, int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := s.AddItem(ctx, CartOwner{UserID: 9}, 1, 6)
	require.NoError(t, err)

	assert.True(t, result.Limited)
	assert.Equal(t, 4, result.Available)
	assert.Equal(t, 4, result.Item.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItemWithinStock(t *testing.T) {
	s, mock := newMockCartService(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM products WHERE id = \$1 AND is_active`).
		WithArgs(int64(1)).
		WillReturnRows(addProductRow(sqlmock.NewRows(productColumns()), 1, "BP-100", "200.00", nil, 10))

	mock.ExpectQuery(`SELECT \* FROM carts WHERE session_key = \$1`).
		WithArgs("sess-abc").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "session_key", "created_at", "updated_at"}).
			AddRow(int64(4), nil, "sess-abc", now, now))

	mock.ExpectQuery(`INSERT INTO cart_items`).
		WithArgs(int64(4), int64(1), 2).
		WillReturnRows(sqlmock.NewRows(cartItemColumns()).
			AddRow(int64(32), int64(4), int64(1), 2, now, now))

	result, err := s.AddItem(ctx, CartOwner{SessionKey: "sess-abc"}, 1, 2)
	require.NoError(t, err)

	assert.False(t, result.Limited)
	assert.Equal(t, 2, result.Item.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetItemQuantityZeroRemoves(t *testing.T) {
	s, mock := newMockCartService(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM cart_items WHERE id = \$1`).
		WithArgs(int64(31)).
		WillReturnRows(sqlmock.NewRows(cartItemColumns()).
			AddRow(int64(31), int64(3), int64(1), 4, now, now))
	mock.ExpectExec(`DELETE FROM cart_items WHERE id = \$1`).
		WithArgs(int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	removed, err := s.SetItemQuantity(ctx, 31, 0)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetItemQuantityRejectsOverStock(t *testing.T) {
	s, mock := newMockCartService(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM cart_items WHERE id = \$1`).
		WithArgs(int64(31)).
		WillReturnRows(sqlmock.NewRows(cartItemColumns()).
			AddRow(int64(31), int64(3), int64(1), 2, now, now))
	mock.ExpectQuery(`SELECT \* FROM products WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(addProductRow(sqlmock.NewRows(productColumns()), 1, "BP-100", "200.00", nil, 3))

	// No UPDATE is expected: the cart stays as it was.
	_, err := s.SetItemQuantity(ctx, 31, 5)
	require.Error(t, err)
	assert.True(t, IsStockInsufficient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTotals(t *testing.T) {
	s, mock := newMockCartService(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM cart_items WHERE cart_id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(cartItemColumns()).
			AddRow(int64(31), int64(3), int64(1), 2, now, now).
			AddRow(int64(32), int64(3), int64(2), 1, now, now))

	// Product 1 has an offer price of 150.00 which wins over 200.00.
	rows := sqlmock.NewRows(productColumns())
	addProductRow(rows, 1, "BP-100", "200.00", "150.00", 10)
	addProductRow(rows, 2, "OF-200", "150.00", nil, 10)
	mock.ExpectQuery(`SELECT \* FROM products WHERE id IN`).
		WillReturnRows(rows)

	totals, err := s.Totals(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, totals.TotalItems)
	assert.True(t, decimal.RequireFromString("450.00").Equal(totals.TotalPrice),
		totals.TotalPrice.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalsEmptyCart(t *testing.T) {
	s, mock := newMockCartService(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM cart_items WHERE cart_id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(cartItemColumns()))

	totals, err := s.Totals(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, totals.TotalItems)
	assert.True(t, totals.TotalPrice.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
