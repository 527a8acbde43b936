package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Aiosol/grandshop/config"
	"github.com/Aiosol/grandshop/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourierRegistrySkipsUnconfigured(t *testing.T) {
	r := NewCourierRegistry(config.CourierConfig{})

	_, ok := r.Get(CourierSteadfast)
	assert.False(t, ok)
	_, ok = r.Get(CourierPathao)
	assert.False(t, ok)
}

func TestCourierRegistryRegistersConfigured(t *testing.T) {
	r := NewCourierRegistry(config.CourierConfig{
		Steadfast: config.SteadfastConfig{APIKey: "key", SecretKey: "secret", BaseURL: "http://localhost"},
	})

	_, ok := r.Get(CourierSteadfast)
	assert.True(t, ok)
	_, ok = r.Get(CourierPathao)
	assert.False(t, ok)
}

func testOrder() *models.Order {
	return &models.Order{
		ID:              11,
		OrderNumber:     "GSAB12CD34",
		CustomerName:    "Rahim Uddin",
		CustomerPhone:   "01700000000",
		ShippingAddress: "12 Motijheel C/A",
		ShippingCity:    "Dhaka",
		TotalAmount:     decimal.RequireFromString("500.00"),
	}
}

func TestSteadfastCreateShipment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/create_order", r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get("Api-Key"))
		assert.Equal(t, "secret-key", r.Header.Get("Secret-Key"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "GSAB12CD34", payload["invoice"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"consignment": map[string]interface{}{"tracking_code": "SF123456"},
		})
	}))
	defer srv.Close()

	client := NewSteadfastClient(config.SteadfastConfig{
		APIKey: "api-key", SecretKey: "secret-key", BaseURL: srv.URL,
	})

	ref, err := client.CreateShipment(context.Background(), testOrder(), nil)
	require.NoError(t, err)
	assert.Equal(t, "SF123456", ref)
}

func TestSteadfastCreateShipmentServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewSteadfastClient(config.SteadfastConfig{
		APIKey: "api-key", SecretKey: "secret-key", BaseURL: srv.URL,
	})

	_, err := client.CreateShipment(context.Background(), testOrder(), nil)
	assert.Error(t, err)
}

func TestSteadfastTrackParcel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status_by_trackingcode/SF123456", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"delivery_status": "in_review"})
	}))
	defer srv.Close()

	client := NewSteadfastClient(config.SteadfastConfig{
		APIKey: "api-key", SecretKey: "secret-key", BaseURL: srv.URL,
	})

	status, err := client.TrackParcel(context.Background(), "SF123456")
	require.NoError(t, err)
	assert.Equal(t, "in_review", status)
}

func TestPathaoCreateShipmentFetchesToken(t *testing.T) {
	tokenCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/aladdin/api/v1/issue-token":
			tokenCalls++
			var creds map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "client-id", creds["client_id"])
			assert.Equal(t, "password", creds["grant_type"])
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
		case "/aladdin/api/v1/orders":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"consignment_id": "PAT-778899"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewPathaoClient(config.PathaoConfig{
		ClientID: "client-id", ClientSecret: "client-secret",
		Username: "merchant", Password: "pw", StoreID: 42, BaseURL: srv.URL,
	})

	items := []models.OrderItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}

	ref, err := client.CreateShipment(context.Background(), testOrder(), items)
	require.NoError(t, err)
	assert.Equal(t, "PAT-778899", ref)

	// Token is cached across calls.
	_, err = client.CreateShipment(context.Background(), testOrder(), items)
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls)
}

func TestPathaoInvalidatesTokenOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/aladdin/api/v1/issue-token":
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-stale"})
		case "/aladdin/api/v1/orders":
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	client := NewPathaoClient(config.PathaoConfig{
		ClientID: "client-id", ClientSecret: "client-secret",
		Username: "merchant", Password: "pw", BaseURL: srv.URL,
	})

	_, err := client.CreateShipment(context.Background(), testOrder(), nil)
	assert.Error(t, err)

	// The cached token was dropped so the next call re-authenticates.
	client.mu.Lock()
	assert.Empty(t, client.token)
	client.mu.Unlock()
}
