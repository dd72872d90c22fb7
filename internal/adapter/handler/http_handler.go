package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/core/service"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type HTTPHandler struct {
	checkout *service.CheckoutService
	logger   zerolog.Logger
}

type PlaceOrderHTTPRequest struct {
	Items []service.ItemRequest `json:"items" binding:"required"`
}

type OrderHTTPResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Order   *domain.Order `json:"order,omitempty"`
}

type ErrorHTTPResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHTTPHandler(checkout *service.CheckoutService, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{checkout: checkout, logger: logger}
}

// NewRouter builds the gin engine with tracing and request logging.
func NewRouter(h *HTTPHandler, serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName), h.logRequests())

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/orders", h.PlaceOrder)
	api.GET("/orders/:orderNumber", h.GetOrder)
	api.GET("/shipping-policy", h.ShippingPolicy)
	return r
}

func (h *HTTPHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorHTTPResponse{Code: "invalid_request", Message: "invalid request body"})
		return
	}

	order, err := h.checkout.PlaceOrder(c.Request.Context(), c.GetHeader(IdempotencyKeyHeader), req.Items)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, OrderHTTPResponse{
		Success: true,
		Message: "order placed successfully",
		Order:   order,
	})
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.checkout.GetOrder(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrderHTTPResponse{Success: true, Message: "ok", Order: order})
}

func (h *HTTPHandler) ShippingPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.checkout.ShippingPolicy())
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	f := classify(err)
	if f.httpStatus >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(f.httpStatus, ErrorHTTPResponse{Code: f.code, Message: f.message})
}

func (h *HTTPHandler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
