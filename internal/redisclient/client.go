package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// BuyNowSelection is the transient single-product checkout selection.
type BuyNowSelection struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// StashBuyNow stores a buy-now selection for a session with a TTL.
func (c *Client) StashBuyNow(ctx context.Context, sessionKey string, sel BuyNowSelection, ttl time.Duration) error {
	payload, err := json.Marshal(sel)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, buyNowKey(sessionKey), payload, ttl).Err()
}

// GetBuyNow retrieves the buy-now selection for a session. Returns
// redis.Nil when no selection is stashed.
func (c *Client) GetBuyNow(ctx context.Context, sessionKey string) (*BuyNowSelection, error) {
	payload, err := c.rdb.Get(ctx, buyNowKey(sessionKey)).Bytes()
	if err != nil {
		return nil, err
	}

	var sel BuyNowSelection
	if err := json.Unmarshal(payload, &sel); err != nil {
		return nil, fmt.Errorf("corrupt buy-now selection: %w", err)
	}
	return &sel, nil
}

// ClearBuyNow deletes a session's buy-now selection.
func (c *Client) ClearBuyNow(ctx context.Context, sessionKey string) error {
	return c.rdb.Del(ctx, buyNowKey(sessionKey)).Err()
}

// SetCartBadge caches the cart item count shown in the storefront header.
func (c *Client) SetCartBadge(ctx context.Context, cartID int64, count int, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("cart:badge:%d", cartID), count, ttl).Err()
}

// GetCartBadge retrieves the cached cart item count.
func (c *Client) GetCartBadge(ctx context.Context, cartID int64) (int, error) {
	return c.rdb.Get(ctx, fmt.Sprintf("cart:badge:%d", cartID)).Int()
}

// InvalidateCartBadge drops the cached count after a cart mutation.
func (c *Client) InvalidateCartBadge(ctx context.Context, cartID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("cart:badge:%d", cartID)).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

func buyNowKey(sessionKey string) string {
	return fmt.Sprintf("buynow:%s", sessionKey)
}
