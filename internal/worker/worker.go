package worker

import (
	"context"
	"log"

	"github.com/Aiosol/grandshop/internal/broker"
	"github.com/Aiosol/grandshop/internal/models"
	"github.com/Aiosol/grandshop/internal/service"
)

// StatsWorker keeps customer statistics current by consuming order events.
// Every OrderCreated event upserts the customer record and recomputes its
// statistics from the order history.
type StatsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	stats        *service.StatsService
}

// NewStatsWorker creates a new customer statistics worker
func NewStatsWorker(consumer *broker.Consumer, stats *service.StatsService) *StatsWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderCreated(func(ctx context.Context, event *models.OrderCreatedEvent) error {
		customer, err := stats.UpsertFromLatestOrder(ctx, event.CustomerEmail)
		if err != nil {
			return err
		}
		_, err = stats.Recompute(ctx, customer.ID)
		return err
	})

	return &StatsWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		stats:        stats,
	}
}

// Start starts the worker
func (w *StatsWorker) Start(ctx context.Context) error {
	log.Println("Starting customer stats worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StatsWorker) Stop() error {
	log.Println("Stopping customer stats worker...")
	return w.consumer.Close()
}

// InventoryWorker re-checks products when their stock changes so alerts are
// raised promptly instead of waiting for the next full scan.
type InventoryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	alerts       *service.AlertService
}

// NewInventoryWorker creates a new inventory alerting worker
func NewInventoryWorker(consumer *broker.Consumer, alerts *service.AlertService) *InventoryWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnStockChanged(func(ctx context.Context, event *models.StockChangedEvent) error {
		if event.StockStatus == models.StockStatusInStock {
			return nil
		}
		_, err := alerts.CheckProduct(ctx, event.ProductID)
		return err
	})

	return &InventoryWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		alerts:       alerts,
	}
}

// Start starts the worker
func (w *InventoryWorker) Start(ctx context.Context) error {
	log.Println("Starting inventory alert worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *InventoryWorker) Stop() error {
	log.Println("Stopping inventory alert worker...")
	return w.consumer.Close()
}
