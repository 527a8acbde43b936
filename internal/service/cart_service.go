package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Aiosol/grandshop/internal/models"
	"github.com/Aiosol/grandshop/internal/redisclient"
	"github.com/Aiosol/grandshop/internal/store"
	"github.com/Aiosol/grandshop/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService implements the cart aggregate: one line per (cart, product),
// quantities clamped to stock, totals computed live.
type CartService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store *store.Store, redis *redisclient.Client) *CartService {
	return &CartService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// CartOwner identifies a cart by exactly one of user ID or session key.
type CartOwner struct {
	UserID     int64
	SessionKey string
}

// AddItemResult reports the cart line after an add, and whether the quantity
// was clamped to the available stock.
type AddItemResult struct {
	Item      *models.CartItem
	Limited   bool
	Available int
}

// GetCart returns the owner's cart, creating it lazily.
func (s *CartService) GetCart(ctx context.Context, owner CartOwner) (*models.Cart, error) {
	if owner.UserID != 0 {
		return s.store.GetOrCreateCartByUser(ctx, owner.UserID)
	}
	if owner.SessionKey != "" {
		return s.store.GetOrCreateCartBySession(ctx, owner.SessionKey)
	}
	return nil, &ValidationError{Field: "cart owner", Reason: "user or session key required"}
}

// AddItem adds quantity of a product to the owner's cart. A repeated add
// increments the existing line. When the resulting quantity exceeds stock it
// is clamped and the result carries a soft StockLimited warning; the cart is
// always left in a valid state.
func (s *CartService) AddItem(ctx context.Context, owner CartOwner, productID int64, quantity int) (*AddItemResult, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if quantity < 1 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	product, err := s.store.GetActiveProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	cart, err := s.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	item, err := s.store.UpsertCartItem(ctx, cart.ID, productID, quantity)
	if err != nil {
		return nil, err
	}

	result := &AddItemResult{Item: item, Available: product.StockQuantity}
	if item.Quantity > product.StockQuantity {
		if err := s.store.SetCartItemQuantity(ctx, item.ID, product.StockQuantity); err != nil {
			return nil, err
		}
		item.Quantity = product.StockQuantity
		result.Limited = true
		s.logger.Info("Cart quantity clamped to stock",
			zap.Int64("cart_id", cart.ID),
			zap.Int64("product_id", productID),
			zap.Int("available", product.StockQuantity))
	}

	s.invalidateBadge(ctx, cart.ID)
	return result, nil
}

// SetItemQuantity overwrites a cart line's quantity. Zero or negative removes
// the line; a quantity above stock is rejected and the cart is unchanged.
func (s *CartService) SetItemQuantity(ctx context.Context, itemID int64, quantity int) (removed bool, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.SetItemQuantity")
	defer span.End()

	item, err := s.store.GetCartItemByID(ctx, itemID)
	if err != nil {
		return false, err
	}

	if quantity <= 0 {
		if err := s.store.DeleteCartItem(ctx, itemID); err != nil {
			return false, err
		}
		s.invalidateBadge(ctx, item.CartID)
		return true, nil
	}

	product, err := s.store.GetProductByID(ctx, item.ProductID)
	if err != nil {
		return false, err
	}
	if quantity > product.StockQuantity {
		return false, &StockInsufficientError{
			ProductID: product.ID,
			Available: product.StockQuantity,
			Requested: quantity,
		}
	}

	if err := s.store.SetCartItemQuantity(ctx, itemID, quantity); err != nil {
		return false, err
	}
	s.invalidateBadge(ctx, item.CartID)
	return false, nil
}

// RemoveItem deletes one line from a cart.
func (s *CartService) RemoveItem(ctx context.Context, itemID int64) error {
	item, err := s.store.GetCartItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCartItem(ctx, itemID); err != nil {
		return err
	}
	s.invalidateBadge(ctx, item.CartID)
	return nil
}

// CartTotals is the live view of a cart's contents.
type CartTotals struct {
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Totals computes item count and price from the current items. Prices use
// each product's effective price at read time; nothing is cached.
func (s *CartService) Totals(ctx context.Context, cartID int64) (*CartTotals, error) {
	items, err := s.store.GetCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}

	totals := &CartTotals{TotalPrice: decimal.Zero}
	if len(items) == 0 {
		return totals, nil
	}

	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}
	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	priceByID := make(map[int64]decimal.Decimal, len(products))
	for i := range products {
		priceByID[products[i].ID] = products[i].EffectivePrice()
	}

	for _, item := range items {
		price, ok := priceByID[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d missing for cart item %d: %w",
				item.ProductID, item.ID, store.ErrNotFound)
		}
		totals.TotalItems += item.Quantity
		totals.TotalPrice = totals.TotalPrice.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return totals, nil
}

// Items returns the cart's lines.
func (s *CartService) Items(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	return s.store.GetCartItems(ctx, cartID)
}

// invalidateBadge drops the cached header badge; refresh happens on next
// read and badge staleness never affects correctness.
func (s *CartService) invalidateBadge(ctx context.Context, cartID int64) {
	if s.redis == nil {
		return
	}
	if err := s.redis.InvalidateCartBadge(ctx, cartID); err != nil {
		s.logger.Warn("Failed to invalidate cart badge",
			zap.Int64("cart_id", cartID), zap.Error(err))
	}
}

// BadgeCount returns the cached cart item count, recomputing and re-caching
// on miss.
func (s *CartService) BadgeCount(ctx context.Context, cartID int64) (int, error) {
	if s.redis != nil {
		if count, err := s.redis.GetCartBadge(ctx, cartID); err == nil {
			return count, nil
		}
	}

	totals, err := s.Totals(ctx, cartID)
	if err != nil {
		return 0, err
	}
	if s.redis != nil {
		if err := s.redis.SetCartBadge(ctx, cartID, totals.TotalItems, 10*time.Minute); err != nil {
			s.logger.Warn("Failed to cache cart badge", zap.Error(err))
		}
	}
	return totals.TotalItems, nil
}
