package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderAPI is the order service as seen by HTTP handlers.
type OrderAPI interface {
	CreateOrder(ctx context.Context, actor service.Actor, req *service.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, actor service.Actor, orderID string) (*models.Order, error)
	ListMyOrders(ctx context.Context, actor service.Actor) ([]models.Order, error)
	ListOrders(ctx context.Context, actor service.Actor, filter models.OrderFilter) ([]models.Order, error)
	UpdateStatus(ctx context.Context, actor service.Actor, orderID string, status models.OrderStatus, note string) (*models.Order, error)
	CancelOrder(ctx context.Context, actor service.Actor, orderID, reason string) (*models.Order, error)
	AddAdminNote(ctx context.Context, actor service.Actor, orderID, note string) (*models.Order, error)
	CheckAvailability(ctx context.Context, productID string, sel models.ColorSelector, quantity int) (bool, error)
}

// PaymentAPI applies payment gateway callbacks.
type PaymentAPI interface {
	HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error
	HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orderService   OrderAPI
	paymentService PaymentAPI
	webhookSecret  string
	dependencies   map[string]Pinger
}

// NewHandler creates a new HTTP handler. Each dependency is pinged by the
// readiness probe.
func NewHandler(orderService OrderAPI, paymentService PaymentAPI, webhookSecret string, dependencies map[string]Pinger) *Handler {
	return &Handler{
		orderService:   orderService,
		paymentService: paymentService,
		webhookSecret:  webhookSecret,
		dependencies:   dependencies,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(identity())
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/mine", h.listMyOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.GET("/products/:productId/availability", h.checkAvailability)

		admin := v1.Group("/admin")
		admin.Use(requireStaff())
		{
			admin.GET("/orders", h.listOrders)
			admin.PUT("/orders/:id/status", h.updateStatus)
			admin.POST("/orders/:id/notes", h.addAdminNote)
		}

		v1.POST("/payments/callback", h.paymentCallback)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency and reports the ones that failed.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	order, err := h.orderService.CreateOrder(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listMyOrders(c *gin.Context) {
	orders, err := h.orderService.ListMyOrders(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) checkAvailability(c *gin.Context) {
	quantity := 1
	if raw := c.Query("quantity"); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "quantity must be an integer")
			return
		}
		quantity = q
	}

	sel := models.ColorSelector{VariantID: c.Query("variant"), Value: c.Query("color")}
	if sel.VariantID == "" && sel.Value == "" {
		badRequest(c, "color or variant is required")
		return
	}

	available, err := h.orderService.CheckAvailability(c.Request.Context(), c.Param("productId"), sel, quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product":   c.Param("productId"),
		"color":     sel.String(),
		"quantity":  quantity,
		"available": available,
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	filter := models.OrderFilter{Status: models.OrderStatus(c.Query("status"))}
	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		badRequest(c, "limit must be an integer")
		return
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		badRequest(c, "offset must be an integer")
		return
	}

	orders, err := h.orderService.ListOrders(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), actorFrom(c), c.Param("id"), models.OrderStatus(req.Status), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type adminNoteRequest struct {
	Note string `json:"note" binding:"required"`
}

func (h *Handler) addAdminNote(c *gin.Context) {
	var req adminNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.orderService.AddAdminNote(c.Request.Context(), actorFrom(c), c.Param("id"), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// paymentCallbackRequest is the gateway webhook payload. It carries the same
// fields as the payment events read from Kafka.
type paymentCallbackRequest struct {
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type" binding:"required,oneof=PAYMENT_SUCCESS PAYMENT_FAILED"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	TxID        string `json:"tx_id"`
	Provider    string `json:"provider"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
}

func (h *Handler) paymentCallback(c *gin.Context) {
	secret := c.GetHeader("X-Webhook-Secret")
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid webhook secret"})
		return
	}

	var req paymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	base := models.BaseEvent{EventID: req.EventID, EventType: req.EventType, Timestamp: time.Now()}
	var err error
	switch req.EventType {
	case models.EventTypePaymentSuccess:
		err = h.paymentService.HandlePaymentSuccess(c.Request.Context(), &models.PaymentSuccessEvent{
			BaseEvent:   base,
			OrderID:     req.OrderID,
			OrderNumber: req.OrderNumber,
			Amount:      req.Amount,
			TxID:        req.TxID,
			Provider:    req.Provider,
		})
	case models.EventTypePaymentFailed:
		err = h.paymentService.HandlePaymentFailed(c.Request.Context(), &models.PaymentFailedEvent{
			BaseEvent:   base,
			OrderID:     req.OrderID,
			OrderNumber: req.OrderNumber,
			TxID:        req.TxID,
			Reason:      req.Reason,
		})
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
