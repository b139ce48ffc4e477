package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/procurement/backend/internal/infrastructure/cache"
	"github.com/procurement/backend/internal/interfaces/http/dto"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
)

// CacheAdmin flushes and inspects the read cache
type CacheAdmin interface {
	FlushAll(ctx context.Context, actor, reason string) int
	FlushShop(ctx context.Context, shopID uuid.UUID, actor, reason string) int
	FlushCategory(ctx context.Context, categoryID uuid.UUID, actor, reason string) int
	Stats() cache.Stats
	Audit() []cache.AuditEntry
}

// FlushResult reports how many cached entries a flush dropped
type FlushResult struct {
	Scope   string `json:"scope"`
	Removed int    `json:"removed"`
}

// CacheAdminHandler serves the cache administration API
type CacheAdminHandler struct {
	BaseHandler
	cache CacheAdmin
}

// NewCacheAdminHandler creates a new CacheAdminHandler
func NewCacheAdminHandler(c CacheAdmin) *CacheAdminHandler {
	return &CacheAdminHandler{cache: c}
}

// Flush drops cached reads of one scope
func (h *CacheAdminHandler) Flush(c *gin.Context) {
	var req dto.CacheFlushRequest
	if !h.bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	actor := middleware.Actor(c)

	var removed int
	switch req.Scope {
	case "shop":
		removed = h.cache.FlushShop(ctx, uuid.MustParse(req.ID), actor, req.Reason)
	case "category":
		removed = h.cache.FlushCategory(ctx, uuid.MustParse(req.ID), actor, req.Reason)
	default:
		removed = h.cache.FlushAll(ctx, actor, req.Reason)
	}
	h.Success(c, FlushResult{Scope: req.Scope, Removed: removed})
}

// Stats returns hit, miss and invalidation counters
func (h *CacheAdminHandler) Stats(c *gin.Context) {
	h.Success(c, h.cache.Stats())
}

// Audit returns recent administrative flushes, newest first
func (h *CacheAdminHandler) Audit(c *gin.Context) {
	h.Success(c, h.cache.Audit())
}
