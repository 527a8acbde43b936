package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SHIPPING_COST", "")
	t.Setenv("STEADFAST_API_KEY", "")
	t.Setenv("PATHAO_CLIENT_ID", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, decimal.RequireFromString("50.00").Equal(cfg.Business.ShippingCost))
	assert.Equal(t, 5, cfg.Business.DefaultLowStockLimit)
	assert.Equal(t, 1800, cfg.Business.BuyNowTTLSeconds)

	// Courier credentials have no fallback values.
	assert.Empty(t, cfg.Courier.Steadfast.APIKey)
	assert.Empty(t, cfg.Courier.Pathao.ClientID)
}

func TestLoadCourierFromEnv(t *testing.T) {
	t.Setenv("STEADFAST_API_KEY", "sf-key")
	t.Setenv("STEADFAST_SECRET_KEY", "sf-secret")
	t.Setenv("PATHAO_CLIENT_ID", "p-client")
	t.Setenv("PATHAO_CLIENT_SECRET", "p-secret")
	t.Setenv("PATHAO_STORE_ID", "42")

	cfg := Load()

	assert.Equal(t, "sf-key", cfg.Courier.Steadfast.APIKey)
	assert.Equal(t, "sf-secret", cfg.Courier.Steadfast.SecretKey)
	assert.Equal(t, "p-client", cfg.Courier.Pathao.ClientID)
	assert.Equal(t, 42, cfg.Courier.Pathao.StoreID)
}
