package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/l2cache/internal/handlers"
)

func registerEntityRoutes(api *gin.RouterGroup, handler *handlers.EntityHandler) {
	if api == nil || handler == nil {
		return
	}

	entities := api.Group("/entities/:class")
	{
		entities.GET("", handler.List)
		entities.POST("", handler.Create)
		entities.GET("/:id", handler.Get)
		entities.PATCH("/:id", handler.Update)
		entities.DELETE("/:id", handler.Delete)
		entities.GET("/:id/collections/:field", handler.Collection)
	}
}
