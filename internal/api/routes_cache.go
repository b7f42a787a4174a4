package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/l2cache/internal/handlers"
)

func registerCacheRoutes(api *gin.RouterGroup, handler *handlers.CacheHandler) {
	if api == nil || handler == nil {
		return
	}

	cache := api.Group("/cache")
	{
		cache.GET("/regions", handler.ListRegions)
		cache.DELETE("/regions", handler.EvictAll)
		cache.DELETE("/regions/:kind/:region", handler.EvictRegion)

		cache.GET("/entities/:class/:id", handler.ContainsEntity)
		cache.DELETE("/entities/:class/:id", handler.EvictEntity)
		cache.DELETE("/entities/:class", handler.EvictEntityRegion)

		cache.GET("/collections/:class/:field/:id", handler.ContainsCollection)
		cache.DELETE("/collections/:class/:field/:id", handler.EvictCollection)
		cache.DELETE("/collections/:class/:field", handler.EvictCollectionRegion)

		cache.DELETE("/queries/:region", handler.EvictQueryRegion)
		cache.GET("/timestamps/:region", handler.LastInvalidation)
	}
}
