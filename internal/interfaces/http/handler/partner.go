package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	catalogapp "github.com/procurement/backend/internal/application/catalog"
	tradeapp "github.com/procurement/backend/internal/application/trade"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/infrastructure/pricelist"
	"github.com/procurement/backend/internal/interfaces/http/dto"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
)

const defaultRunLimit = 20

// IngestionService is the price list side of the partner API
type IngestionService interface {
	IngestDocument(ctx context.Context, partnerID uuid.UUID, raw []byte, format string, source catalog.IngestionSource) (*catalogapp.IngestionRunView, error)
	IngestFromURL(ctx context.Context, partnerID uuid.UUID, rawURL string, source catalog.IngestionSource) (*catalogapp.IngestionRunView, error)
	ExportShopCatalog(ctx context.Context, partnerID uuid.UUID, format string) ([]byte, error)
	ListRuns(ctx context.Context, partnerID uuid.UUID, limit int) ([]catalogapp.IngestionRunView, error)
}

// ShopStateService reads and toggles a partner's shop
type ShopStateService interface {
	GetState(ctx context.Context, partnerID uuid.UUID) (*catalogapp.ShopStateView, error)
	SetActive(ctx context.Context, partnerID uuid.UUID, active bool) (*catalogapp.ShopStateView, error)
}

// ShopOrderLister lists the orders containing a partner's goods
type ShopOrderLister interface {
	ListShopOrders(ctx context.Context, partnerID uuid.UUID, q tradeapp.ListOrdersQuery) (shared.Paginated[tradeapp.OrderView], error)
}

// PartnerHandler serves the partner (shop owner) API
type PartnerHandler struct {
	BaseHandler
	ingestion IngestionService
	shops     ShopStateService
	orders    ShopOrderLister
}

// NewPartnerHandler creates a new PartnerHandler
func NewPartnerHandler(ingestion IngestionService, shops ShopStateService, orders ShopOrderLister) *PartnerHandler {
	return &PartnerHandler{ingestion: ingestion, shops: shops, orders: orders}
}

// Update ingests a price list. The body is either the document itself (YAML
// or JSON) or {"url": "..."} naming where to fetch it from.
func (h *PartnerHandler) Update(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
			dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size", middleware.GetRequestID(c)))
		return
	}
	if len(raw) == 0 {
		h.BadRequest(c, "Request body must be a price list or {\"url\": ...}")
		return
	}

	format := pricelist.FormatFromContentType(c.GetHeader("Content-Type"))
	partnerID := middleware.PartnerID(c)

	var run *catalogapp.IngestionRunView
	if feedURL, ok := feedURLRequest(raw, format); ok {
		req := dto.FeedURLRequest{URL: feedURL}
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
		run, err = h.ingestion.IngestFromURL(c.Request.Context(), partnerID, req.URL, catalog.IngestionSourceURL)
	} else {
		run, err = h.ingestion.IngestDocument(c.Request.Context(), partnerID, raw, format, catalog.IngestionSourceUpload)
	}
	if err != nil {
		h.HandleErrorWithData(c, err, run)
		return
	}
	h.Success(c, run)
}

// feedURLRequest recognizes a JSON body carrying only a url
func feedURLRequest(raw []byte, format string) (string, bool) {
	if format == pricelist.FormatYAML {
		return "", false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) != 1 {
		return "", false
	}
	var u string
	if err := json.Unmarshal(fields["url"], &u); err != nil {
		return "", false
	}
	return u, true
}

// GetState returns the partner's shop
func (h *PartnerHandler) GetState(c *gin.Context) {
	state, err := h.shops.GetState(c.Request.Context(), middleware.PartnerID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// SetState opens or closes the partner's shop for orders
func (h *PartnerHandler) SetState(c *gin.Context) {
	var req dto.ShopStateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	state, err := h.shops.SetActive(c.Request.Context(), middleware.PartnerID(c), *req.Active)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// Orders lists orders containing the partner's goods, newest first
func (h *PartnerHandler) Orders(c *gin.Context) {
	var req dto.OrderListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	page, err := h.orders.ListShopOrders(c.Request.Context(), middleware.PartnerID(c), tradeapp.ListOrdersQuery{
		Page:     req.Page,
		PageSize: req.PageSize,
		Status:   req.Status,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPageResponse(page))
}

// Export downloads the partner's current catalog as a price list
func (h *PartnerHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", pricelist.FormatYAML)
	body, err := h.ingestion.ExportShopCatalog(c.Request.Context(), middleware.PartnerID(c), format)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	contentType := "application/yaml; charset=utf-8"
	if format == pricelist.FormatJSON {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, body)
}

// Runs lists the partner's recent ingestion runs
func (h *PartnerHandler) Runs(c *gin.Context) {
	var req dto.RunListRequest
	if !h.bindQuery(c, &req) {
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultRunLimit
	}
	runs, err := h.ingestion.ListRuns(c.Request.Context(), middleware.PartnerID(c), req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, runs)
}
