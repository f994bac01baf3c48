package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// NewRouter собирает gin-роутер сервиса допуска заказов.
func NewRouter(admission AdmissionService, logger *log.Entry) *gin.Engine {
	if logger == nil {
		logger = log.WithField("component", "http-handler")
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	orders := NewOrderHandler(admission, logger)

	api := router.Group("/api")
	{
		api.POST("/products/:productId/purchase", orders.CreateProductOrder)
		api.POST("/timedeals/:dealId/purchase", orders.CreateTimedealOrder)
		api.GET("/purchases/:idempotencyKey", orders.GetPurchaseStatus)
	}

	return router
}

// requestLogger пишет одну запись журнала на обработанный запрос.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(started),
		}).Info("request handled")
	}
}
