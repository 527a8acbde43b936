package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order attempts",
	}, []string{"reason"})

	StockRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_rejections_total",
		Help: "Total number of order lines rejected for insufficient stock",
	})

	OrderBuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_build_latency_seconds",
		Help:    "Latency of order creation including stock decrement",
		Buckets: prometheus.DefBuckets,
	})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_changes_total",
		Help: "Total number of order status changes",
	}, []string{"status"})

	BulkOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_operations_total",
		Help: "Total number of bulk operations run",
	}, []string{"type"})

	BulkItemsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_items_processed_total",
		Help: "Total number of bulk operation items by outcome",
	}, []string{"outcome"})

	InventoryAlertsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_alerts_created_total",
		Help: "Total number of inventory alerts created",
	}, []string{"type"})

	CustomerStatsRecomputesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "customer_stats_recomputes_total",
		Help: "Total number of customer statistics recomputations",
	})

	CourierShipmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_shipments_total",
		Help: "Total number of courier shipment attempts by outcome",
	}, []string{"courier", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
