package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Aiosol/grandshop/config"
	"github.com/Aiosol/grandshop/internal/models"
)

// Courier names accepted as a courier choice.
const (
	CourierSteadfast = "steadfast"
	CourierPathao    = "pathao"
)

// CourierClient is the capability interface for outbound courier APIs.
// Failures are never fatal to the calling operation.
type CourierClient interface {
	CreateShipment(ctx context.Context, order *models.Order, items []models.OrderItem) (trackingRef string, err error)
	TrackParcel(ctx context.Context, trackingRef string) (status string, err error)
}

// CourierRegistry holds the configured courier clients by name.
type CourierRegistry struct {
	clients map[string]CourierClient
}

// NewCourierRegistry builds the registry from injected configuration.
// Couriers with missing credentials are left unregistered.
func NewCourierRegistry(cfg config.CourierConfig) *CourierRegistry {
	r := &CourierRegistry{clients: make(map[string]CourierClient)}
	if cfg.Steadfast.APIKey != "" {
		r.clients[CourierSteadfast] = NewSteadfastClient(cfg.Steadfast)
	}
	if cfg.Pathao.ClientID != "" {
		r.clients[CourierPathao] = NewPathaoClient(cfg.Pathao)
	}
	return r
}

// Register adds or replaces a courier client. Used by tests.
func (r *CourierRegistry) Register(name string, client CourierClient) {
	r.clients[name] = client
}

// Get returns the client for a courier name.
func (r *CourierRegistry) Get(name string) (CourierClient, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// SteadfastClient integrates with the Steadfast courier API.
type SteadfastClient struct {
	apiKey    string
	secretKey string
	baseURL   string
	http      *http.Client
}

func NewSteadfastClient(cfg config.SteadfastConfig) *SteadfastClient {
	return &SteadfastClient{
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		baseURL:   cfg.BaseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *SteadfastClient) CreateShipment(ctx context.Context, order *models.Order, items []models.OrderItem) (string, error) {
	payload := map[string]interface{}{
		"invoice":           order.OrderNumber,
		"recipient_name":    order.CustomerName,
		"recipient_phone":   order.CustomerPhone,
		"recipient_address": order.ShippingAddress,
		"cod_amount":        order.TotalAmount,
		"note":              order.Notes,
	}

	var resp struct {
		Consignment struct {
			TrackingCode string `json:"tracking_code"`
		} `json:"consignment"`
	}
	if err := c.post(ctx, "/create_order", payload, &resp); err != nil {
		return "", err
	}
	return resp.Consignment.TrackingCode, nil
}

func (c *SteadfastClient) TrackParcel(ctx context.Context, trackingRef string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/status_by_trackingcode/%s", c.baseURL, trackingRef), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Secret-Key", c.secretKey)

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("steadfast tracking failed: %w", err)
	}
	defer res.Body.Close()

	var body struct {
		DeliveryStatus string `json:"delivery_status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.DeliveryStatus, nil
}

func (c *SteadfastClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Secret-Key", c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("steadfast request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return fmt.Errorf("steadfast returned status %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// PathaoClient integrates with the Pathao courier API. The OAuth token is
// fetched lazily and cached until a request fails.
type PathaoClient struct {
	cfg  config.PathaoConfig
	http *http.Client

	mu    sync.Mutex
	token string
}

func NewPathaoClient(cfg config.PathaoConfig) *PathaoClient {
	return &PathaoClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *PathaoClient) CreateShipment(ctx context.Context, order *models.Order, items []models.OrderItem) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	totalItems := 0
	for _, item := range items {
		totalItems += item.Quantity
	}

	payload := map[string]interface{}{
		"store_id":            c.cfg.StoreID,
		"merchant_order_id":   order.OrderNumber,
		"recipient_name":      order.CustomerName,
		"recipient_phone":     order.CustomerPhone,
		"recipient_address":   order.ShippingAddress,
		"recipient_city":      order.ShippingCity,
		"delivery_type":       48,
		"item_type":           2,
		"special_instruction": order.Notes,
		"item_quantity":       totalItems,
		"amount_to_collect":   order.TotalAmount,
		"item_description":    "Automotive Parts",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/aladdin/api/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pathao request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
		return "", fmt.Errorf("pathao token rejected")
	}
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("pathao returned status %d", res.StatusCode)
	}

	var resp struct {
		Data struct {
			ConsignmentID string `json:"consignment_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", err
	}
	return resp.Data.ConsignmentID, nil
}

func (c *PathaoClient) TrackParcel(ctx context.Context, trackingRef string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/aladdin/api/v1/orders/%s", c.cfg.BaseURL, trackingRef), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pathao tracking failed: %w", err)
	}
	defer res.Body.Close()

	var body struct {
		Data struct {
			OrderStatus string `json:"order_status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Data.OrderStatus, nil
}

func (c *PathaoClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	payload := map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"username":      c.cfg.Username,
		"password":      c.cfg.Password,
		"grant_type":    "password",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/aladdin/api/v1/issue-token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pathao token request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return "", fmt.Errorf("pathao token request returned status %d", res.StatusCode)
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("pathao returned empty access token")
	}

	c.token = resp.AccessToken
	return c.token, nil
}

func (c *PathaoClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
