package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/secondlevel"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
	"github.com/charlesng35/l2cache/pkg/response"
)

// CacheHandler exposes administrative inspection and eviction of second-level cache regions.
type CacheHandler struct {
	cache *secondlevel.Cache
}

// NewCacheHandler constructs a cache administration handler.
func NewCacheHandler(cache *secondlevel.Cache) (*CacheHandler, error) {
	if cache == nil {
		return nil, apperrors.New("CACHE_REQUIRED", "second-level cache is required", http.StatusInternalServerError)
	}
	return &CacheHandler{cache: cache}, nil
}

type containsDTO struct {
	Region   string `json:"region"`
	Contains bool   `json:"contains"`
}

type timestampDTO struct {
	Region           string `json:"region"`
	LastInvalidation int64  `json:"last_invalidation"`
	Known            bool   `json:"known"`
}

// ListRegions GET /api/cache/regions
func (h *CacheHandler) ListRegions(c *gin.Context) {
	regions := h.cache.Regions()
	if kind := strings.TrimSpace(c.Query("kind")); kind != "" {
		filtered := make([]secondlevel.Region, 0, len(regions))
		for _, region := range regions {
			if string(region.Kind) == kind {
				filtered = append(filtered, region)
			}
		}
		regions = filtered
	}
	response.SuccessWithMeta(c, http.StatusOK, regions, &response.Meta{Total: len(regions)})
}

// EvictRegion DELETE /api/cache/regions/:kind/:region
func (h *CacheHandler) EvictRegion(c *gin.Context) {
	region := secondlevel.Region{
		Name: c.Param("region"),
		Kind: secondlevel.Kind(c.Param("kind")),
	}
	if err := h.cache.EvictRegion(requestContext(c), region); err != nil {
		response.Error(c, err)
		return
	}
	requestLogger(c).Info("cache region evicted", zap.String("kind", string(region.Kind)), zap.String("region", region.Name))
	response.Success(c, http.StatusOK, gin.H{"evicted": region})
}

// EvictAll DELETE /api/cache/regions
func (h *CacheHandler) EvictAll(c *gin.Context) {
	ctx := requestContext(c)
	evicted := make([]secondlevel.Region, 0)
	for _, region := range h.cache.Regions() {
		if region.Kind != secondlevel.KindTimestamp {
			evicted = append(evicted, region)
		}
	}
	err := multierr.Combine(
		h.cache.EvictEntityRegions(ctx),
		h.cache.EvictCollectionRegions(ctx),
		h.cache.EvictQueryRegions(ctx),
	)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	requestLogger(c).Info("cache regions evicted", zap.Int("regions", len(evicted)))
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"evicted": evicted}, &response.Meta{Total: len(evicted)})
}

// ContainsEntity GET /api/cache/entities/:class/:id
func (h *CacheHandler) ContainsEntity(c *gin.Context) {
	class := c.Param("class")
	region, err := h.cache.EntityRegion(class)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok, err := h.cache.ContainsEntity(requestContext(c), class, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, containsDTO{Region: region, Contains: ok})
}

// EvictEntity DELETE /api/cache/entities/:class/:id
func (h *CacheHandler) EvictEntity(c *gin.Context) {
	if err := h.cache.EvictEntity(requestContext(c), c.Param("class"), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EvictEntityRegion DELETE /api/cache/entities/:class
func (h *CacheHandler) EvictEntityRegion(c *gin.Context) {
	if err := h.cache.EvictEntityRegion(requestContext(c), c.Param("class")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ContainsCollection GET /api/cache/collections/:class/:field/:id
func (h *CacheHandler) ContainsCollection(c *gin.Context) {
	class, field := c.Param("class"), c.Param("field")
	region, err := h.cache.CollectionRegion(class, field)
	if err != nil {
		response.Error(c, err)
		return
	}
	ok, err := h.cache.ContainsCollection(requestContext(c), class, field, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, containsDTO{Region: region, Contains: ok})
}

// EvictCollection DELETE /api/cache/collections/:class/:field/:id
func (h *CacheHandler) EvictCollection(c *gin.Context) {
	if err := h.cache.EvictCollection(requestContext(c), c.Param("class"), c.Param("field"), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EvictCollectionRegion DELETE /api/cache/collections/:class/:field
func (h *CacheHandler) EvictCollectionRegion(c *gin.Context) {
	if err := h.cache.EvictCollectionRegion(requestContext(c), c.Param("class"), c.Param("field")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EvictQueryRegion DELETE /api/cache/queries/:region
func (h *CacheHandler) EvictQueryRegion(c *gin.Context) {
	region := c.Param("region")
	if region == secondlevel.TimestampRegionName {
		response.Error(c, apperrors.ErrBadRequest.WithMessagef("%s cannot be evicted", region))
		return
	}
	if !h.cache.HasQueryRegion(region) {
		response.Error(c, apperrors.ErrRegionNotFound.WithMessagef("query region %s not found", region))
		return
	}
	if err := h.cache.EvictQueryRegion(requestContext(c), region); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// LastInvalidation GET /api/cache/timestamps/:region
func (h *CacheHandler) LastInvalidation(c *gin.Context) {
	region := c.Param("region")
	value, known := h.cache.Timestamps().LastInvalidation(requestContext(c), region)
	response.Success(c, http.StatusOK, timestampDTO{Region: region, LastInvalidation: value, Known: known})
}
