package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Aiosol/grandshop/internal/models"
	"github.com/Aiosol/grandshop/internal/service"
	"github.com/Aiosol/grandshop/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	carts    *service.CartService
	orders   *service.OrderService
	statuses *service.StatusService
	bulk     *service.BulkService
	alerts   *service.AlertService
	stats    *service.StatsService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	carts *service.CartService,
	orders *service.OrderService,
	statuses *service.StatusService,
	bulk *service.BulkService,
	alerts *service.AlertService,
	stats *service.StatsService,
) *Handler {
	return &Handler{
		carts:    carts,
		orders:   orders,
		statuses: statuses,
		bulk:     bulk,
		alerts:   alerts,
		stats:    stats,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.GET("/cart", h.getCart)
		v1.GET("/cart/badge", h.cartBadge)
		v1.POST("/cart/items", h.addCartItem)
		v1.PATCH("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)

		v1.POST("/checkout/cart", h.checkoutCart)
		v1.POST("/checkout/single", h.checkoutSingle)
		v1.POST("/checkout/buy-now", h.stashBuyNow)
		v1.POST("/checkout/buy-now/confirm", h.confirmBuyNow)

		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/number/:number", h.getOrderByNumber)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)
		v1.PATCH("/orders/:id/payment-status", h.updatePaymentStatus)

		v1.GET("/orders/:id/management", h.getManagement)
		v1.POST("/orders/:id/courier", h.assignCourier)
		v1.POST("/orders/:id/quality-check", h.markQualityChecked)
		v1.POST("/orders/:id/label", h.markLabelGenerated)
		v1.POST("/orders/:id/priority", h.setPriority)

		v1.POST("/bulk-operations", h.runBulkOperation)
		v1.GET("/bulk-operations/:id", h.getBulkOperation)

		v1.GET("/alerts", h.listAlerts)
		v1.POST("/alerts/scan", h.scanAlerts)
		v1.POST("/alerts/:id/acknowledge", h.acknowledgeAlert)
		v1.POST("/alerts/:id/resolve", h.resolveAlert)
		v1.POST("/alerts/:id/dismiss", h.dismissAlert)

		v1.GET("/customers/:id", h.getCustomer)
		v1.POST("/customers/:id/recompute-stats", h.recomputeStats)
		v1.POST("/customers/sync", h.syncCustomers)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError maps service errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var statusErr *service.InvalidStatusError
	var stockErr *service.StockInsufficientError

	switch {
	case service.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      stockErr.Error(),
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
	case errors.As(err, &validationErr), errors.As(err, &statusErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
		return 0, false
	}
	return id, true
}

// cartOwner resolves the cart identity: an authenticated user via the
// X-User-ID header, otherwise the anonymous session via X-Session-Key.
func cartOwner(c *gin.Context) (service.CartOwner, bool) {
	if userIDStr := c.GetHeader("X-User-ID"); userIDStr != "" {
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid X-User-ID header"})
			return service.CartOwner{}, false
		}
		return service.CartOwner{UserID: userID}, true
	}
	if sessionKey := c.GetHeader("X-Session-Key"); sessionKey != "" {
		return service.CartOwner{SessionKey: sessionKey}, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID or X-Session-Key header required"})
	return service.CartOwner{}, false
}

// listProducts handles product listing
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.orders.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct handles get product by ID
func (h *Handler) getProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	product, err := h.orders.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// getCart returns the owner's cart with items and live totals.
func (h *Handler) getCart(c *gin.Context) {
	owner, ok := cartOwner(c)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.carts.Items(c.Request.Context(), cart.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	totals, err := h.carts.Totals(c.Request.Context(), cart.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart":   cart,
		"items":  items,
		"totals": totals,
	})
}

// cartBadge returns the cached item count for the cart badge.
func (h *Handler) cartBadge(c *gin.Context) {
	owner, ok := cartOwner(c)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	count, err := h.carts.BadgeCount(c.Request.Context(), cart.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

type addCartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

// addCartItem adds a product line to the cart, clamping to available stock.
func (h *Handler) addCartItem(c *gin.Context) {
	owner, ok := cartOwner(c)
	if !ok {
		return
	}

	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	result, err := h.carts.AddItem(c.Request.Context(), owner, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"item": result.Item}
	if result.Limited {
		resp["warning"] = "quantity limited to available stock"
		resp["available"] = result.Available
	}
	c.JSON(http.StatusOK, resp)
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// updateCartItem sets a line's quantity; zero or negative removes the line.
func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	removed, err := h.carts.SetItemQuantity(c.Request.Context(), itemID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// removeCartItem deletes a cart line
func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(c.Request.Context(), itemID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

type checkoutRequest struct {
	Customer service.CustomerInfo `json:"customer" binding:"required"`
	Shipping service.ShippingInfo `json:"shipping" binding:"required"`
	Notes    string               `json:"notes"`
	Courier  string               `json:"courier"`
}

// checkoutCart converts the owner's cart into an order.
func (h *Handler) checkoutCart(c *gin.Context) {
	owner, ok := cartOwner(c)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	cart, err := h.carts.GetCart(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.orders.CreateOrderFromCart(c.Request.Context(), cart.ID,
		req.Customer, req.Shipping, req.Notes, req.Courier)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

type singleCheckoutRequest struct {
	ProductID int64                `json:"product_id" binding:"required"`
	Quantity  int                  `json:"quantity" binding:"required"`
	Customer  service.CustomerInfo `json:"customer" binding:"required"`
	Shipping  service.ShippingInfo `json:"shipping" binding:"required"`
	Notes     string               `json:"notes"`
	Courier   string               `json:"courier"`
}

// checkoutSingle creates an order for one product directly.
func (h *Handler) checkoutSingle(c *gin.Context) {
	var req singleCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.CreateOrderFromSingleItem(c.Request.Context(),
		req.ProductID, req.Quantity, req.Customer, req.Shipping, req.Notes, req.Courier)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

type buyNowRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

// stashBuyNow stores a transient buy-now selection for the session.
func (h *Handler) stashBuyNow(c *gin.Context) {
	sessionKey := c.GetHeader("X-Session-Key")
	if sessionKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Session-Key header required"})
		return
	}

	var req buyNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.orders.StashBuyNow(c.Request.Context(), sessionKey, req.ProductID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stashed": true})
}

// confirmBuyNow completes a stashed buy-now selection as an order.
func (h *Handler) confirmBuyNow(c *gin.Context) {
	sessionKey := c.GetHeader("X-Session-Key")
	if sessionKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Session-Key header required"})
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.CreateOrderFromBuyNow(c.Request.Context(), sessionKey,
		req.Customer, req.Shipping, req.Notes, req.Courier)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, items, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// getOrderByNumber handles get order by public order number
func (h *Handler) getOrderByNumber(c *gin.Context) {
	order, items, err := h.orders.GetOrderByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

type statusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

// updateOrderStatus handles order status transitions
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.statuses.UpdateOrderStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// updatePaymentStatus handles payment status transitions
func (h *Handler) updatePaymentStatus(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.statuses.UpdatePaymentStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// getManagement returns the back-office record for an order
func (h *Handler) getManagement(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	mgmt, err := h.statuses.GetManagement(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mgmt)
}

type assignCourierRequest struct {
	Courier        string `json:"courier" binding:"required"`
	TrackingNumber string `json:"tracking_number"`
}

// assignCourier records the courier on the management record
func (h *Handler) assignCourier(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req assignCourierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.statuses.AssignCourier(c.Request.Context(), orderID, req.Courier, req.TrackingNumber); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assigned": true})
}

type qualityCheckRequest struct {
	Agent string `json:"agent" binding:"required"`
}

// markQualityChecked flags the order as quality checked
func (h *Handler) markQualityChecked(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req qualityCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.statuses.MarkQualityChecked(c.Request.Context(), orderID, req.Agent); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quality_checked": true})
}

// markLabelGenerated records shipping label generation
func (h *Handler) markLabelGenerated(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.statuses.MarkLabelGenerated(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"label_generated": true})
}

type priorityRequest struct {
	Priority string `json:"priority" binding:"required"`
}

// setPriority sets the handling priority
func (h *Handler) setPriority(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.statuses.SetPriority(c.Request.Context(), orderID, req.Priority); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"priority": req.Priority})
}

type bulkOperationRequest struct {
	OperationType string             `json:"operation_type" binding:"required"`
	OrderIDs      []int64            `json:"order_ids" binding:"required"`
	Params        service.BulkParams `json:"params"`
	CreatedBy     string             `json:"created_by" binding:"required"`
}

// runBulkOperation executes a bulk operation synchronously
func (h *Handler) runBulkOperation(c *gin.Context) {
	var req bulkOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	op, err := h.bulk.Run(c.Request.Context(), req.OperationType, req.OrderIDs, req.Params, req.CreatedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, op)
}

// getBulkOperation retrieves a bulk operation record
func (h *Handler) getBulkOperation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	op, err := h.bulk.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, op)
}

// listAlerts lists inventory alerts by status
func (h *Handler) listAlerts(c *gin.Context) {
	status := c.DefaultQuery("status", models.AlertStatusActive)
	alerts, err := h.alerts.List(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// scanAlerts triggers a full inventory scan
func (h *Handler) scanAlerts(c *gin.Context) {
	created, err := h.alerts.ScanAndAlert(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts_created": created})
}

type acknowledgeRequest struct {
	Agent string `json:"agent" binding:"required"`
}

// acknowledgeAlert acknowledges an active alert
func (h *Handler) acknowledgeAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.alerts.Acknowledge(c.Request.Context(), id, req.Agent); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// resolveAlert resolves an open alert
func (h *Handler) resolveAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.alerts.Resolve(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}

// dismissAlert dismisses an active alert
func (h *Handler) dismissAlert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.alerts.Dismiss(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dismissed": true})
}

// getCustomer retrieves a customer with derived statistics
func (h *Handler) getCustomer(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	customer, err := h.stats.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// recomputeStats recalculates customer statistics on demand
func (h *Handler) recomputeStats(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	customer, err := h.stats.Recompute(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// syncCustomers rebuilds customer records from the order history
func (h *Handler) syncCustomers(c *gin.Context) {
	result, err := h.stats.SyncFromOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
