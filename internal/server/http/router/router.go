package router

import (
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/polkiloo/orderpay/internal/server/http/handlers"
	"github.com/polkiloo/orderpay/internal/server/http/middleware"
)

// Setup configures gin router with handlers and middleware.
func Setup(facade handlers.PaymentFacade, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.DecompressRequest())
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	orderHandler := handlers.NewOrderHandler(facade)
	healthHandler := handlers.NewHealthHandler(facade)

	engine.GET("/healthz", healthHandler.Check)

	payments := engine.Group("/api/payments")
	payments.Use(middleware.AuthRequired(facade))
	payments.POST("/create-order", orderHandler.Create)
	payments.POST("/verify-payment", orderHandler.Verify)
	payments.POST("/:orderId/fail", orderHandler.Fail)
	payments.POST("/:orderId/cancel", orderHandler.Cancel)
	payments.POST("/:orderId/refund", orderHandler.Refund)
	payments.GET("/orders", orderHandler.List)
	payments.GET("/orders/:orderId", orderHandler.Get)

	return engine
}
