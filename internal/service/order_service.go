package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aiosol/grandshop/config"
	"github.com/Aiosol/grandshop/internal/broker"
	"github.com/Aiosol/grandshop/internal/models"
	"github.com/Aiosol/grandshop/internal/redisclient"
	"github.com/Aiosol/grandshop/internal/store"
	"github.com/Aiosol/grandshop/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService builds persisted orders from carts or buy-now selections.
// Stock decrement, order and item creation and cart clearing commit in a
// single transaction; courier assignment is best-effort afterwards.
type OrderService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	couriers       *CourierRegistry
	shippingCost   decimal.Decimal
	buyNowTTL      time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	couriers *CourierRegistry,
	business config.BusinessConfig,
) *OrderService {
	return &OrderService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		couriers:       couriers,
		shippingCost:   business.ShippingCost,
		buyNowTTL:      time.Duration(business.BuyNowTTLSeconds) * time.Second,
		logger:         util.GetLogger(),
	}
}

// CustomerInfo is the customer snapshot captured on the order.
type CustomerInfo struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

// ShippingInfo is the shipping snapshot captured on the order.
type ShippingInfo struct {
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postal_code"`
}

func validateCheckout(customer CustomerInfo, shipping ShippingInfo) error {
	switch {
	case strings.TrimSpace(customer.Name) == "":
		return &ValidationError{Field: "customer name", Reason: "required"}
	case !strings.Contains(customer.Email, "@"):
		return &ValidationError{Field: "customer email", Reason: "not a valid address"}
	case strings.TrimSpace(customer.Phone) == "":
		return &ValidationError{Field: "customer phone", Reason: "required"}
	case strings.TrimSpace(shipping.Address) == "":
		return &ValidationError{Field: "shipping address", Reason: "required"}
	case strings.TrimSpace(shipping.City) == "":
		return &ValidationError{Field: "shipping city", Reason: "required"}
	}
	return nil
}

// orderLine is one validated product line entering the builder.
type orderLine struct {
	product  *models.Product
	quantity int
}

// CreateOrderFromCart converts the cart into an order, clearing the cart on
// success.
func (s *OrderService) CreateOrderFromCart(
	ctx context.Context,
	cartID int64,
	customer CustomerInfo,
	shipping ShippingInfo,
	notes string,
	courierChoice string,
) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrderFromCart")
	defer span.End()

	items, err := s.store.GetCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &ValidationError{Field: "cart", Reason: "empty"}
	}

	lines, err := s.resolveLines(ctx, items)
	if err != nil {
		return nil, err
	}

	return s.buildOrder(ctx, lines, customer, shipping, notes, courierChoice, &cartID)
}

// CreateOrderFromSingleItem is the direct "buy now" checkout for one product.
func (s *OrderService) CreateOrderFromSingleItem(
	ctx context.Context,
	productID int64,
	quantity int,
	customer CustomerInfo,
	shipping ShippingInfo,
	notes string,
	courierChoice string,
) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrderFromSingleItem")
	defer span.End()

	if quantity < 1 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	product, err := s.store.GetActiveProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > product.StockQuantity {
		util.StockRejectionsTotal.Inc()
		return nil, &StockInsufficientError{
			ProductID: productID,
			Available: product.StockQuantity,
			Requested: quantity,
		}
	}

	lines := []orderLine{{product: product, quantity: quantity}}
	return s.buildOrder(ctx, lines, customer, shipping, notes, courierChoice, nil)
}

// StashBuyNow validates and stores a transient buy-now selection for the
// session.
func (s *OrderService) StashBuyNow(ctx context.Context, sessionKey string, productID int64, quantity int) error {
	if quantity < 1 {
		return &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	product, err := s.store.GetActiveProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if quantity > product.StockQuantity {
		return &StockInsufficientError{
			ProductID: productID,
			Available: product.StockQuantity,
			Requested: quantity,
		}
	}

	sel := redisclient.BuyNowSelection{ProductID: productID, Quantity: quantity}
	return s.redis.StashBuyNow(ctx, sessionKey, sel, s.buyNowTTL)
}

// CreateOrderFromBuyNow completes a stashed buy-now selection. The stash is
// cleared only after the order commits.
func (s *OrderService) CreateOrderFromBuyNow(
	ctx context.Context,
	sessionKey string,
	customer CustomerInfo,
	shipping ShippingInfo,
	notes string,
	courierChoice string,
) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrderFromBuyNow")
	defer span.End()

	sel, err := s.redis.GetBuyNow(ctx, sessionKey)
	if err != nil {
		return nil, &ValidationError{Field: "buy-now selection", Reason: "none stashed for session"}
	}

	order, err := s.CreateOrderFromSingleItem(ctx, sel.ProductID, sel.Quantity,
		customer, shipping, notes, courierChoice)
	if err != nil {
		return nil, err
	}

	if err := s.redis.ClearBuyNow(ctx, sessionKey); err != nil {
		s.logger.Warn("Failed to clear buy-now selection",
			zap.String("session", sessionKey), zap.Error(err))
	}
	return order, nil
}

// resolveLines loads products for cart items, pre-checking stock so the
// caller gets a precise rejection before the transaction starts. The
// authoritative check is the conditional decrement inside the transaction.
func (s *OrderService) resolveLines(ctx context.Context, items []models.CartItem) ([]orderLine, error) {
	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	lines := make([]orderLine, 0, len(items))
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, store.ErrNotFound)
		}
		if item.Quantity > product.StockQuantity {
			util.StockRejectionsTotal.Inc()
			return nil, &StockInsufficientError{
				ProductID: product.ID,
				Available: product.StockQuantity,
				Requested: item.Quantity,
			}
		}
		lines = append(lines, orderLine{product: product, quantity: item.Quantity})
	}
	return lines, nil
}

// buildOrder persists the order, items and stock decrements in one
// transaction; clearCartID, when set, clears that cart inside the same
// transaction. No partial order survives a failure on any line.
func (s *OrderService) buildOrder(
	ctx context.Context,
	lines []orderLine,
	customer CustomerInfo,
	shipping ShippingInfo,
	notes string,
	courierChoice string,
	clearCartID *int64,
) (*models.Order, error) {
	start := time.Now()
	defer func() {
		util.OrderBuildLatency.Observe(time.Since(start).Seconds())
	}()

	if err := validateCheckout(customer, shipping); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.product.EffectivePrice().Mul(decimal.NewFromInt(int64(line.quantity))))
	}
	discount := decimal.Zero
	total := subtotal.Sub(discount).Add(s.shippingCost)

	order := &models.Order{
		OrderNumber:        models.NewOrderNumber(),
		Status:             models.OrderStatusPending,
		PaymentStatus:      models.PaymentStatusPending,
		CustomerName:       customer.Name,
		CustomerEmail:      customer.Email,
		CustomerPhone:      customer.Phone,
		ShippingAddress:    shipping.Address,
		ShippingCity:       shipping.City,
		ShippingPostalCode: shipping.PostalCode,
		ShippingCost:       s.shippingCost,
		Subtotal:           subtotal,
		DiscountAmount:     discount,
		TotalAmount:        total,
		Notes:              notes,
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.CreateOrderTx(ctx, tx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	orderItems := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		unitPrice := line.product.EffectivePrice()
		item := models.OrderItem{
			OrderID:     order.ID,
			ProductID:   line.product.ID,
			ProductName: line.product.Name,
			ProductSKU:  line.product.SKU,
			Quantity:    line.quantity,
			UnitPrice:   unitPrice,
			TotalPrice:  unitPrice.Mul(decimal.NewFromInt(int64(line.quantity))),
		}
		if err := s.store.CreateOrderItemTx(ctx, tx, &item); err != nil {
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		if err := s.store.DecrementStockTx(ctx, tx, line.product.ID, line.quantity); err != nil {
			if IsStockInsufficient(err) {
				util.StockRejectionsTotal.Inc()
				util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
				return nil, &StockInsufficientError{
					ProductID: line.product.ID,
					Available: line.product.StockQuantity,
					Requested: line.quantity,
				}
			}
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			return nil, err
		}

		orderItems = append(orderItems, item)
	}

	if clearCartID != nil {
		if err := s.store.ClearCartTx(ctx, tx, *clearCartID); err != nil {
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			return nil, fmt.Errorf("failed to clear cart: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("order_id", order.ID),
		zap.String("total", order.TotalAmount.String()))

	s.publishOrderCreated(ctx, order, orderItems, lines)

	if courierChoice != "" {
		s.assignCourier(ctx, order, orderItems, courierChoice)
	}

	return order, nil
}

func (s *OrderService) publishOrderCreated(ctx context.Context, order *models.Order, items []models.OrderItem, lines []orderLine) {
	eventItems := make([]models.OrderItemData, len(items))
	for i, item := range items {
		eventItems[i] = models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		TotalAmount:   order.TotalAmount,
		Items:         eventItems,
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	for _, line := range lines {
		newQty := line.product.StockQuantity - line.quantity
		stockEvent := &models.StockChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockChanged,
				Timestamp: time.Now(),
			},
			ProductID:   line.product.ID,
			NewQuantity: newQty,
			StockStatus: models.StockStatusFor(newQty, line.product.LowStockThreshold),
		}
		if err := s.eventPublisher.PublishStockChanged(ctx, stockEvent); err != nil {
			s.logger.Error("Failed to publish StockChanged event", zap.Error(err))
		}
	}
}

// assignCourier creates the shipment with the chosen courier. Best-effort:
// a failure logs and leaves the committed order untouched.
func (s *OrderService) assignCourier(ctx context.Context, order *models.Order, items []models.OrderItem, courierChoice string) {
	client, ok := s.couriers.Get(courierChoice)
	if !ok {
		s.logger.Warn("Unknown or disabled courier, skipping shipment",
			zap.String("courier", courierChoice),
			zap.String("order_number", order.OrderNumber))
		return
	}

	trackingRef, err := client.CreateShipment(ctx, order, items)
	if err != nil {
		util.CourierShipmentsTotal.WithLabelValues(courierChoice, "error").Inc()
		s.logger.Error("Courier shipment creation failed",
			zap.String("courier", courierChoice),
			zap.String("order_number", order.OrderNumber),
			zap.Error(err))
		return
	}

	shipment := &models.Shipment{
		OrderID:        order.ID,
		CourierName:    courierChoice,
		TrackingNumber: trackingRef,
		Status:         models.ShipmentStatusPending,
	}
	if err := s.store.CreateShipment(ctx, shipment); err != nil {
		s.logger.Error("Failed to persist shipment",
			zap.String("order_number", order.OrderNumber), zap.Error(err))
		return
	}

	if _, err := s.store.EnsureOrderManagement(ctx, order.ID); err == nil {
		if err := s.store.AssignCourier(ctx, order.ID, courierChoice, trackingRef); err != nil {
			s.logger.Warn("Failed to record courier on management record", zap.Error(err))
		}
	}

	util.CourierShipmentsTotal.WithLabelValues(courierChoice, "success").Inc()
	s.logger.Info("Shipment created",
		zap.String("order_number", order.OrderNumber),
		zap.String("courier", courierChoice),
		zap.String("tracking", trackingRef))
}

// ListProducts returns the active product catalog
func (s *OrderService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.GetProducts(ctx)
}

// GetProduct retrieves an active product by ID
func (s *OrderService) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	return s.store.GetActiveProductByID(ctx, productID)
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// GetOrderByNumber retrieves an order by its public order number
func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}
