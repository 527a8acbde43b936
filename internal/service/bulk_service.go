package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aiosol/grandshop/internal/models"
	"github.com/Aiosol/grandshop/internal/store"
	"github.com/Aiosol/grandshop/internal/util"

	"go.uber.org/zap"
)

// BulkService runs batches of independent per-order actions. Items are
// processed sequentially; one failing item never aborts the batch, and the
// operation record is the audit trail of what happened to each order.
type BulkService struct {
	store    *store.Store
	statuses *StatusService
	logger   *zap.Logger
}

// NewBulkService creates a new bulk operation runner
func NewBulkService(store *store.Store, statuses *StatusService) *BulkService {
	return &BulkService{
		store:    store,
		statuses: statuses,
		logger:   util.GetLogger(),
	}
}

// BulkParams carries the per-type parameters of a bulk operation.
type BulkParams struct {
	// NewStatus applies to status_update operations.
	NewStatus string `json:"new_status,omitempty"`
	// Courier applies to courier_assign operations.
	Courier string `json:"courier,omitempty"`
}

// bulkItemResult is one entry in the persisted results array.
type bulkItemResult struct {
	OrderID int64  `json:"order_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Run executes a bulk operation over orderIDs and returns the finished
// record. The record reaches "completed" whenever the loop ran, regardless
// of per-item failures; "failed" is reserved for setup errors that prevent
// the loop from starting.
func (s *BulkService) Run(
	ctx context.Context,
	operationType string,
	orderIDs []int64,
	params BulkParams,
	createdBy string,
) (*models.BulkOrderOperation, error) {
	ctx, span := util.StartSpan(ctx, "BulkService.Run")
	defer span.End()

	if len(orderIDs) == 0 {
		return nil, &ValidationError{Field: "order_ids", Reason: "empty"}
	}
	switch operationType {
	case models.BulkOpStatusUpdate:
		if !models.ValidOrderStatus(params.NewStatus) {
			return nil, &InvalidStatusError{Kind: "order", Value: params.NewStatus}
		}
	case models.BulkOpCourierAssign:
		if params.Courier != CourierSteadfast && params.Courier != CourierPathao {
			return nil, &ValidationError{Field: "courier", Reason: "unknown courier"}
		}
	case models.BulkOpLabelGenerate:
	default:
		return nil, &ValidationError{Field: "operation_type", Reason: "unknown operation type"}
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode operation params: %w", err)
	}

	op := &models.BulkOrderOperation{
		OperationType:   operationType,
		Status:          models.BulkStatusPending,
		CreatedBy:       createdBy,
		TotalOrders:     len(orderIDs),
		OperationParams: paramsJSON,
	}
	if err := s.store.CreateBulkOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to create bulk operation: %w", err)
	}

	if err := s.store.StartBulkOperation(ctx, op.ID); err != nil {
		_ = s.store.FailBulkOperation(ctx, op.ID, err.Error())
		return nil, fmt.Errorf("failed to start bulk operation: %w", err)
	}
	op.Status = models.BulkStatusProcessing

	util.BulkOperationsTotal.WithLabelValues(operationType).Inc()
	s.logger.Info("Bulk operation started",
		zap.Int64("operation_id", op.ID),
		zap.String("type", operationType),
		zap.Int("total_orders", op.TotalOrders))

	results := make([]bulkItemResult, 0, len(orderIDs))
	var errorLines []string

	for _, orderID := range orderIDs {
		itemErr := s.runItem(ctx, operationType, orderID, params)
		if itemErr != nil {
			op.FailedOrders++
			util.BulkItemsProcessedTotal.WithLabelValues("failed").Inc()
			errorLines = append(errorLines, fmt.Sprintf("order %d: %v", orderID, itemErr))
			results = append(results, bulkItemResult{OrderID: orderID, Success: false, Error: itemErr.Error()})
		} else {
			op.ProcessedOrders++
			util.BulkItemsProcessedTotal.WithLabelValues("succeeded").Inc()
			results = append(results, bulkItemResult{OrderID: orderID, Success: true})
		}
	}

	op.Status = models.BulkStatusCompleted
	op.ErrorLog = strings.Join(errorLines, "\n")
	op.Results, err = json.Marshal(results)
	if err != nil {
		op.Results = nil
	}
	if err := s.store.FinishBulkOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to finish bulk operation: %w", err)
	}

	s.logger.Info("Bulk operation completed",
		zap.Int64("operation_id", op.ID),
		zap.Int("processed", op.ProcessedOrders),
		zap.Int("failed", op.FailedOrders))

	return op, nil
}

// runItem applies the operation to one order, converting a panic into that
// item's failure so the batch keeps going.
func (s *BulkService) runItem(ctx context.Context, operationType string, orderID int64, params BulkParams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("Bulk item panicked",
				zap.Int64("order_id", orderID), zap.Any("panic", r))
		}
	}()

	switch operationType {
	case models.BulkOpStatusUpdate:
		_, err = s.statuses.UpdateOrderStatus(ctx, orderID, params.NewStatus)
	case models.BulkOpCourierAssign:
		err = s.statuses.AssignCourier(ctx, orderID, params.Courier, "")
	case models.BulkOpLabelGenerate:
		err = s.statuses.MarkLabelGenerated(ctx, orderID)
	default:
		err = fmt.Errorf("unknown operation type: %s", operationType)
	}
	return err
}

// Get retrieves a bulk operation record by ID
func (s *BulkService) Get(ctx context.Context, id int64) (*models.BulkOrderOperation, error) {
	return s.store.GetBulkOperation(ctx, id)
}
