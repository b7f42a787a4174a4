package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/l2cache/internal/orm"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
	"github.com/charlesng35/l2cache/pkg/response"
)

const maxListLimit = 500

// EntityHandler reads and writes mapped entities through the entity manager so every request
// exercises the second-level cache. Each request works in its own session.
type EntityHandler struct {
	em *orm.EntityManager
}

// NewEntityHandler constructs an entity handler.
func NewEntityHandler(em *orm.EntityManager) (*EntityHandler, error) {
	if em == nil {
		return nil, apperrors.New("ENTITY_MANAGER_REQUIRED", "entity manager is required", http.StatusInternalServerError)
	}
	return &EntityHandler{em: em}, nil
}

type entityDTO struct {
	Class  string            `json:"class"`
	ID     string            `json:"id"`
	Fields map[string]any    `json:"fields"`
	Refs   map[string]string `json:"refs,omitempty"`
}

type entityPayload struct {
	ID     string            `json:"id" validate:"omitempty,max=64"`
	Fields map[string]any    `json:"fields"`
	Refs   map[string]string `json:"refs"`
}

func mapEntity(e *orm.Entity) entityDTO {
	return entityDTO{Class: e.Class, ID: e.ID, Fields: e.Fields, Refs: e.Refs}
}

func mapEntities(entities []*orm.Entity) []entityDTO {
	out := make([]entityDTO, 0, len(entities))
	for _, e := range entities {
		out = append(out, mapEntity(e))
	}
	return out
}

// List GET /api/entities/:class?offset=&limit=&cacheable=
func (h *EntityHandler) List(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := parseIntQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	query := h.em.Session().CreateQuery(c.Param("class"), "e").
		SetFirstResult(offset).
		SetMaxResults(limit).
		SetCacheable(parseBoolQuery(c, "cacheable"))
	if region := strings.TrimSpace(c.Query("region")); region != "" {
		if !h.em.Cache().HasQueryRegion(region) {
			response.Error(c, apperrors.ErrRegionNotFound.WithMessagef("query region %s not found", region))
			return
		}
		query.SetCacheRegion(region)
	}

	entities, err := query.Result(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, mapEntities(entities), &response.Meta{
		Total:  len(entities),
		Offset: offset,
		Limit:  limit,
	})
}

// Get GET /api/entities/:class/:id
func (h *EntityHandler) Get(c *gin.Context) {
	e, err := h.em.Session().Find(requestContext(c), c.Param("class"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, mapEntity(e))
}

// Collection GET /api/entities/:class/:id/collections/:field
func (h *EntityHandler) Collection(c *gin.Context) {
	session := h.em.Session()
	ctx := requestContext(c)

	owner, err := session.Find(ctx, c.Param("class"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	members, err := session.Collection(ctx, owner, c.Param("field"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, mapEntities(members), &response.Meta{Total: len(members)})
}

// Create POST /api/entities/:class
func (h *EntityHandler) Create(c *gin.Context) {
	var payload entityPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	session := h.em.Session()
	e := orm.NewEntity(c.Param("class"))
	e.ID = strings.TrimSpace(payload.ID)
	applyPayload(e, payload)

	if err := session.Persist(e); err != nil {
		response.Error(c, err)
		return
	}
	if err := session.Flush(requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, mapEntity(e))
}

// Update PATCH /api/entities/:class/:id
func (h *EntityHandler) Update(c *gin.Context) {
	var payload entityPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	session := h.em.Session()
	ctx := requestContext(c)
	e, err := session.Find(ctx, c.Param("class"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	applyPayload(e, payload)

	if err := session.Flush(ctx); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, mapEntity(e))
}

// Delete DELETE /api/entities/:class/:id
func (h *EntityHandler) Delete(c *gin.Context) {
	session := h.em.Session()
	ctx := requestContext(c)
	e, err := session.Find(ctx, c.Param("class"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := session.Remove(e); err != nil {
		response.Error(c, err)
		return
	}
	if err := session.Flush(ctx); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func applyPayload(e *orm.Entity, payload entityPayload) {
	for field, value := range payload.Fields {
		e.Set(field, value)
	}
	for field, id := range payload.Refs {
		e.SetRef(field, id)
	}
}
