package service

import (
	"context"

	"github.com/Aiosol/grandshop/internal/models"
	"github.com/Aiosol/grandshop/internal/store"
	"github.com/Aiosol/grandshop/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StatsService derives customer statistics from the order history. The
// recompute is a pure function of the orders table, so running it twice in a
// row writes the same values.
type StatsService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewStatsService creates a new customer statistics service
func NewStatsService(store *store.Store) *StatsService {
	return &StatsService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Recompute recalculates and persists the statistics for one customer.
func (s *StatsService) Recompute(ctx context.Context, customerID int64) (*models.Customer, error) {
	customer, err := s.store.GetCustomerByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.recompute(ctx, customer)
}

// RecomputeByEmail recalculates and persists the statistics for the customer
// with the given email.
func (s *StatsService) RecomputeByEmail(ctx context.Context, email string) (*models.Customer, error) {
	customer, err := s.store.GetCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.recompute(ctx, customer)
}

func (s *StatsService) recompute(ctx context.Context, customer *models.Customer) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.recompute")
	defer span.End()

	agg, err := s.store.AggregateOrdersByEmail(ctx, customer.Email)
	if err != nil {
		return nil, err
	}

	customer.TotalOrders = agg.TotalOrders
	customer.TotalSpent = decimal.Zero
	if agg.TotalSpent.Valid {
		customer.TotalSpent = agg.TotalSpent.Decimal
	}
	customer.AverageOrderValue = decimal.Zero
	if agg.TotalOrders > 0 {
		customer.AverageOrderValue = customer.TotalSpent.
			Div(decimal.NewFromInt(int64(agg.TotalOrders))).Round(2)
	}
	customer.LastOrderDate = agg.LastOrderDate

	if err := s.store.UpdateCustomerStats(ctx, customer); err != nil {
		return nil, err
	}

	util.CustomerStatsRecomputesTotal.Inc()
	s.logger.Debug("Customer stats recomputed",
		zap.String("email", customer.Email),
		zap.Int("total_orders", customer.TotalOrders),
		zap.String("total_spent", customer.TotalSpent.String()))

	return customer, nil
}

// SyncResult summarizes a full customer sync run.
type SyncResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// SyncFromOrders walks every customer email seen in the order history,
// upserts the customer record from the newest order snapshot and recomputes
// its statistics. Per-email failures are counted, not fatal.
func (s *StatsService) SyncFromOrders(ctx context.Context) (*SyncResult, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.SyncFromOrders")
	defer span.End()

	emails, err := s.store.ListCustomerEmailsFromOrders(ctx)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	for _, email := range emails {
		customer, err := s.UpsertFromLatestOrder(ctx, email)
		if err != nil {
			result.Failed++
			s.logger.Error("Customer sync failed for email",
				zap.String("email", email), zap.Error(err))
			continue
		}
		if _, err := s.recompute(ctx, customer); err != nil {
			result.Failed++
			s.logger.Error("Stats recompute failed for email",
				zap.String("email", email), zap.Error(err))
			continue
		}
		result.Synced++
	}

	s.logger.Info("Customer sync finished",
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed))
	return result, nil
}

// UpsertFromLatestOrder creates or refreshes the customer record from the
// newest order carrying the email.
func (s *StatsService) UpsertFromLatestOrder(ctx context.Context, email string) (*models.Customer, error) {
	order, err := s.store.LatestOrderSnapshotByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	customer := &models.Customer{
		Name:       order.CustomerName,
		Email:      order.CustomerEmail,
		Phone:      order.CustomerPhone,
		Address:    order.ShippingAddress,
		City:       order.ShippingCity,
		PostalCode: order.ShippingPostalCode,
	}
	if err := s.store.UpsertCustomer(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// Get returns a customer by ID.
func (s *StatsService) Get(ctx context.Context, customerID int64) (*models.Customer, error) {
	return s.store.GetCustomerByID(ctx, customerID)
}
