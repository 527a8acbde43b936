package service

import (
	"context"
	"time"

	"github.com/Aiosol/grandshop/internal/broker"
	"github.com/Aiosol/grandshop/internal/models"
	"github.com/Aiosol/grandshop/internal/store"
	"github.com/Aiosol/grandshop/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusService applies order and payment status changes and keeps the
// back-office management record stamped with lifecycle timestamps.
// Any transition between valid statuses is accepted, including backwards
// moves; correcting a mis-click is an operator workflow here.
type StatusService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewStatusService creates a new status service
func NewStatusService(store *store.Store, eventPublisher *broker.EventPublisher) *StatusService {
	return &StatusService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// lifecycleColumn maps a status to the management timestamp it stamps.
var lifecycleColumn = map[string]string{
	models.OrderStatusProcessing: "processing_started_at",
	models.OrderStatusShipped:    "shipped_at",
	models.OrderStatusDelivered:  "delivered_at",
}

// UpdateOrderStatus sets the order status and publishes the transition.
// Setting the status it already has is a no-op write but still stamps and
// publishes, so replayed requests stay harmless.
func (s *StatusService) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "StatusService.UpdateOrderStatus")
	defer span.End()

	if !models.ValidOrderStatus(newStatus) {
		return nil, &InvalidStatusError{Kind: "order", Value: newStatus}
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	oldStatus := order.Status

	if err := s.store.UpdateOrderStatus(ctx, orderID, newStatus); err != nil {
		return nil, err
	}
	order.Status = newStatus

	if column, ok := lifecycleColumn[newStatus]; ok {
		if _, err := s.store.EnsureOrderManagement(ctx, orderID); err != nil {
			s.logger.Warn("Failed to ensure management record",
				zap.Int64("order_id", orderID), zap.Error(err))
		} else if err := s.store.StampLifecycle(ctx, orderID, column, time.Now()); err != nil {
			s.logger.Warn("Failed to stamp lifecycle timestamp",
				zap.Int64("order_id", orderID),
				zap.String("column", column), zap.Error(err))
		}
	}

	util.OrderStatusChangesTotal.WithLabelValues(newStatus).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("old_status", oldStatus),
		zap.String("new_status", newStatus))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
	}
	if err := s.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	return order, nil
}

// UpdatePaymentStatus sets the payment status and publishes the transition.
func (s *StatusService) UpdatePaymentStatus(ctx context.Context, orderID int64, newStatus string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "StatusService.UpdatePaymentStatus")
	defer span.End()

	if !models.ValidPaymentStatus(newStatus) {
		return nil, &InvalidStatusError{Kind: "payment", Value: newStatus}
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	oldStatus := order.PaymentStatus

	if err := s.store.UpdatePaymentStatus(ctx, orderID, newStatus); err != nil {
		return nil, err
	}
	order.PaymentStatus = newStatus

	s.logger.Info("Payment status updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("old_status", oldStatus),
		zap.String("new_status", newStatus))

	event := &models.PaymentStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
	}
	if err := s.eventPublisher.PublishPaymentStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentStatusChanged event", zap.Error(err))
	}

	return order, nil
}

// GetManagement returns the back-office record, creating it on first touch.
func (s *StatusService) GetManagement(ctx context.Context, orderID int64) (*models.OrderManagement, error) {
	if _, err := s.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.EnsureOrderManagement(ctx, orderID)
}

// AssignCourier records the courier and tracking number on the management
// record.
func (s *StatusService) AssignCourier(ctx context.Context, orderID int64, courier, trackingNumber string) error {
	if courier != CourierSteadfast && courier != CourierPathao {
		return &ValidationError{Field: "courier", Reason: "unknown courier"}
	}
	if _, err := s.store.EnsureOrderManagement(ctx, orderID); err != nil {
		return err
	}
	return s.store.AssignCourier(ctx, orderID, courier, trackingNumber)
}

// MarkQualityChecked flags the order as quality checked by the given agent.
func (s *StatusService) MarkQualityChecked(ctx context.Context, orderID int64, agent string) error {
	if _, err := s.store.EnsureOrderManagement(ctx, orderID); err != nil {
		return err
	}
	return s.store.SetQualityChecked(ctx, orderID, agent)
}

// MarkLabelGenerated records that the shipping label was produced.
func (s *StatusService) MarkLabelGenerated(ctx context.Context, orderID int64) error {
	if _, err := s.store.EnsureOrderManagement(ctx, orderID); err != nil {
		return err
	}
	return s.store.MarkLabelGenerated(ctx, orderID)
}

// SetPriority sets the handling priority on the management record.
func (s *StatusService) SetPriority(ctx context.Context, orderID int64, priority string) error {
	switch priority {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
	default:
		return &ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	if _, err := s.store.EnsureOrderManagement(ctx, orderID); err != nil {
		return err
	}
	return s.store.SetPriority(ctx, orderID, priority)
}
