package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Aiosol/grandshop/internal/models"
	"github.com/Aiosol/grandshop/internal/redisclient"
	"github.com/Aiosol/grandshop/internal/store"
	"github.com/Aiosol/grandshop/internal/util"

	"go.uber.org/zap"
)

const scanLockKey = "inventory-scan"
const scanLockTTL = 5 * time.Minute

// AlertService raises and manages stock-level alerts. Duplicate suppression
// is enforced in the database, so concurrent scans and event-driven checks
// never double-alert.
type AlertService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(store *store.Store, redis *redisclient.Client) *AlertService {
	return &AlertService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// ScanAndAlert sweeps every low or out-of-stock product and raises missing
// alerts. Returns the number of alerts actually created. Overlapping scans
// are skipped via a redis lock; skipping is not an error.
func (s *AlertService) ScanAndAlert(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "AlertService.ScanAndAlert")
	defer span.End()

	acquired, err := s.redis.AcquireLock(ctx, scanLockKey, scanLockTTL)
	if err != nil {
		s.logger.Warn("Failed to acquire scan lock, scanning anyway", zap.Error(err))
	} else if !acquired {
		s.logger.Info("Inventory scan already running, skipping")
		return 0, nil
	} else {
		defer func() {
			if err := s.redis.ReleaseLock(ctx, scanLockKey); err != nil {
				s.logger.Warn("Failed to release scan lock", zap.Error(err))
			}
		}()
	}

	created := 0
	for _, status := range []string{models.StockStatusLowStock, models.StockStatusOutOfStock} {
		products, err := s.store.GetProductsByStockStatus(ctx, status)
		if err != nil {
			return created, fmt.Errorf("failed to list %s products: %w", status, err)
		}
		for i := range products {
			ok, err := s.raiseForProduct(ctx, &products[i])
			if err != nil {
				s.logger.Error("Failed to raise alert",
					zap.Int64("product_id", products[i].ID), zap.Error(err))
				continue
			}
			if ok {
				created++
			}
		}
	}

	s.logger.Info("Inventory scan finished", zap.Int("alerts_created", created))
	return created, nil
}

// CheckProduct re-evaluates one product, raising an alert if its stock level
// warrants one. Used by the stock-change consumer.
func (s *AlertService) CheckProduct(ctx context.Context, productID int64) (bool, error) {
	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return false, err
	}
	if models.StockStatusFor(product.StockQuantity, product.LowStockThreshold) == models.StockStatusInStock {
		return false, nil
	}
	return s.raiseForProduct(ctx, product)
}

func (s *AlertService) raiseForProduct(ctx context.Context, product *models.Product) (bool, error) {
	alertType := models.AlertTypeLowStock
	message := fmt.Sprintf("%s (%s) is low on stock: %d left (threshold %d)",
		product.Name, product.SKU, product.StockQuantity, product.LowStockThreshold)
	if product.StockQuantity == 0 {
		alertType = models.AlertTypeOutOfStock
		message = fmt.Sprintf("%s (%s) is out of stock", product.Name, product.SKU)
	}

	alert := &models.InventoryAlert{
		ProductID:      product.ID,
		AlertType:      alertType,
		Message:        message,
		CurrentStock:   product.StockQuantity,
		ThresholdValue: product.LowStockThreshold,
	}
	created, err := s.store.CreateInventoryAlert(ctx, alert)
	if err != nil {
		return false, err
	}
	if created {
		util.InventoryAlertsCreatedTotal.WithLabelValues(alertType).Inc()
		s.logger.Info("Inventory alert raised",
			zap.Int64("product_id", product.ID),
			zap.String("alert_type", alertType),
			zap.Int("current_stock", product.StockQuantity))
	}
	return created, nil
}

// List returns alerts in the given status, newest first.
func (s *AlertService) List(ctx context.Context, status string) ([]models.InventoryAlert, error) {
	switch status {
	case models.AlertStatusActive, models.AlertStatusAcknowledged,
		models.AlertStatusResolved, models.AlertStatusDismissed:
	default:
		return nil, &ValidationError{Field: "status", Reason: "unknown alert status"}
	}
	return s.store.ListInventoryAlerts(ctx, status)
}

// Acknowledge moves an active alert to acknowledged, recording the agent.
func (s *AlertService) Acknowledge(ctx context.Context, alertID int64, agent string) error {
	if agent == "" {
		return &ValidationError{Field: "agent", Reason: "required"}
	}
	return s.store.AcknowledgeAlert(ctx, alertID, agent)
}

// Resolve closes an active or acknowledged alert.
func (s *AlertService) Resolve(ctx context.Context, alertID int64) error {
	return s.store.ResolveAlert(ctx, alertID)
}

// Dismiss discards an active alert without action.
func (s *AlertService) Dismiss(ctx context.Context, alertID int64) error {
	return s.store.DismissAlert(ctx, alertID)
}
