package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/http/handlers"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/http/middleware"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/modules/payments"
)

type RouterDeps struct {
	Logger   *slog.Logger
	Payments *payments.Service
	Refunds  *payments.RefundService
	Webhooks *payments.WebhookService
	Registry *payments.Registry
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.ErrorHandler(deps.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ph := handlers.NewPaymentsHandler(deps.Payments, deps.Refunds)
	wh := handlers.NewWebhooksHandler(deps.Registry, deps.Webhooks)

	api := r.Group("/api")
	{
		api.POST("/payments/process", ph.Process)
		api.GET("/payments/:transactionId", ph.GetTransaction)
		api.POST("/payments/:transactionId/refund", ph.Refund)
		api.GET("/payments/:transactionId/refunds", ph.ListRefunds)
		api.GET("/refunds/:refundId", ph.GetRefund)
	}

	r.POST("/webhooks/:provider", wh.Receive)

	return r
}
