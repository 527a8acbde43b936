package service

import (
	"context"
	"testing"

	"github.com/Aiosol/grandshop/internal/broker"
	"github.com/Aiosol/grandshop/internal/models"
	"github.com/Aiosol/grandshop/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStatusService(t *testing.T) (*StatusService, sqlmock.Sqlmock, *memorySink) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sink := &memorySink{}
	st := store.NewWithDB(sqlx.NewDb(mockDB, "postgres"))
	return NewStatusService(st, broker.NewEventPublisher(sink)), mock, sink
}

func TestUpdateOrderStatusRejectsUnknown(t *testing.T) {
	s, _, sink := newMockStatusService(t)

	_, err := s.UpdateOrderStatus(context.Background(), 1, "packed")
	var statusErr *InvalidStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Empty(t, sink.events)
}

func TestUpdateOrderStatusPublishesTransition(t *testing.T) {
	s, mock, sink := newMockStatusService(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM orders WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(addOrderRow(sqlmock.NewRows(orderColumns()), 1, "GSAAAA0001", models.OrderStatusPending))
	mock.ExpectExec(`UPDATE orders SET status`).
		WithArgs(models.OrderStatusConfirmed, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	order, err := s.UpdateOrderStatus(ctx, 1, models.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)

	require.Len(t, sink.events, 1)
	event, ok := sink.events[0].(*models.OrderStatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusPending, event.OldStatus)
	assert.Equal(t, models.OrderStatusConfirmed, event.NewStatus)
	assert.Equal(t, "GSAAAA0001", event.OrderNumber)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusStampsLifecycle(t *testing.T) {
	s, mock, sink := newMockStatusService(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM orders WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(addOrderRow(sqlmock.NewRows(orderColumns()), 1, "GSAAAA0001", models.OrderStatusConfirmed))
	mock.ExpectExec(`UPDATE orders SET status`).
		WithArgs(models.OrderStatusShipped, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Moving to shipped stamps shipped_at on the management record.
	mock.ExpectExec(`INSERT INTO order_management`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM order_management WHERE order_id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(managementRows(1))
	mock.ExpectExec(`UPDATE order_management SET shipped_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := s.UpdateOrderStatus(ctx, 1, models.OrderStatusShipped)
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusAllowsBackwardsMove(t *testing.T) {
	s, mock, sink := newMockStatusService(t)
	ctx := context.Background()

	// Shipped back to pending is accepted; operators use it to undo
	// mistakes.
	mock.ExpectQuery(`SELECT \* FROM orders WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(addOrderRow(sqlmock.NewRows(orderColumns()), 1, "GSAAAA0001", models.OrderStatusShipped))
	mock.ExpectExec(`UPDATE orders SET status`).
		WithArgs(models.OrderStatusPending, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	order, err := s.UpdateOrderStatus(ctx, 1, models.OrderStatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Len(t, sink.events, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePaymentStatus(t *testing.T) {
	s, mock, sink := newMockStatusService(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM orders WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(addOrderRow(sqlmock.NewRows(orderColumns()), 1, "GSAAAA0001", models.OrderStatusConfirmed))
	mock.ExpectExec(`UPDATE orders SET payment_status`).
		WithArgs(models.PaymentStatusPaid, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	order, err := s.UpdatePaymentStatus(ctx, 1, models.PaymentStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)

	require.Len(t, sink.events, 1)
	event, ok := sink.events[0].(*models.PaymentStatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, models.PaymentStatusPending, event.OldStatus)
	assert.Equal(t, models.PaymentStatusPaid, event.NewStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPriorityRejectsUnknown(t *testing.T) {
	s, _, _ := newMockStatusService(t)

	err := s.SetPriority(context.Background(), 1, "asap")
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestAssignCourierRejectsUnknown(t *testing.T) {
	s, _, _ := newMockStatusService(t)

	err := s.AssignCourier(context.Background(), 1, "dhl", "X1")
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}
