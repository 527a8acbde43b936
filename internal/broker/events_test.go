package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Aiosol/grandshop/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestEventHandlerRoutesOrderCreated(t *testing.T) {
	eh := NewEventHandler()

	var got *models.OrderCreatedEvent
	eh.OnOrderCreated(func(ctx context.Context, event *models.OrderCreatedEvent) error {
		got = event
		return nil
	})

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:       11,
		OrderNumber:   "GSAB12CD34",
		CustomerEmail: "rahim@example.com",
	}

	err := eh.HandleMessage(context.Background(), message(t, event))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(11), got.OrderID)
	assert.Equal(t, "GSAB12CD34", got.OrderNumber)
}

func TestEventHandlerRoutesStockChanged(t *testing.T) {
	eh := NewEventHandler()

	var got *models.StockChangedEvent
	eh.OnStockChanged(func(ctx context.Context, event *models.StockChangedEvent) error {
		got = event
		return nil
	})

	event := &models.StockChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-2",
			EventType: models.EventTypeStockChanged,
			Timestamp: time.Now(),
		},
		ProductID:   7,
		NewQuantity: 0,
		StockStatus: models.StockStatusOutOfStock,
	}

	err := eh.HandleMessage(context.Background(), message(t, event))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.ProductID)
	assert.Equal(t, models.StockStatusOutOfStock, got.StockStatus)
}

func TestEventHandlerIgnoresUnregisteredTypes(t *testing.T) {
	eh := NewEventHandler()

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-3",
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID: 11,
	}

	assert.NoError(t, eh.HandleMessage(context.Background(), message(t, event)))
}

func TestEventHandlerRejectsMalformedPayload(t *testing.T) {
	eh := NewEventHandler()

	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}
