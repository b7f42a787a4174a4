package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/middleware"
	"github.com/charlesng35/l2cache/pkg/logger"
)

// requestContext returns the request context, or a background context outside a request.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// requestLogger tags the admin module logger with the request id assigned by middleware.RequestID.
func requestLogger(c *gin.Context) *zap.Logger {
	log := logger.WithModule("admin")
	if c == nil {
		return log
	}
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		log = log.With(zap.String("request_id", id))
	}
	return log
}
