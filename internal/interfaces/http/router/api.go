package router

import (
	"github.com/procurement/backend/internal/interfaces/http/handler"
	"github.com/procurement/backend/internal/interfaces/http/middleware"
)

// Handlers are the handlers mounted by APIGroups
type Handlers struct {
	Partner    *handler.PartnerHandler
	Catalog    *handler.CatalogHandler
	Basket     *handler.BasketHandler
	Contact    *handler.ContactHandler
	Order      *handler.OrderHandler
	CacheAdmin *handler.CacheAdminHandler
}

// APIGroups builds the route groups of the procurement API. Partner routes
// require X-Partner-ID, basket, contact and buyer order routes X-Buyer-ID.
func APIGroups(h Handlers) []*DomainGroup {
	partner := NewDomainGroup("partner", "/partner").
		Use(middleware.RequirePartner(), middleware.SpanAttributes()).
		POST("/update", h.Partner.Update).
		GET("/state", h.Partner.GetState).
		PUT("/state", h.Partner.SetState).
		GET("/orders", h.Partner.Orders).
		GET("/export", h.Partner.Export).
		GET("/runs", h.Partner.Runs)

	catalog := NewDomainGroup("catalog", "").
		GET("/shops", h.Catalog.Shops).
		GET("/categories", h.Catalog.Categories).
		GET("/listings", h.Catalog.Listings).
		GET("/listings/:id", h.Catalog.Listing)

	basket := NewDomainGroup("basket", "/basket").
		Use(middleware.RequireBuyer(), middleware.SpanAttributes()).
		GET("", h.Basket.Get).
		DELETE("", h.Basket.Clear).
		POST("/lines", h.Basket.AddLine).
		PUT("/lines/:listing_id", h.Basket.SetQuantity).
		DELETE("/lines/:listing_id", h.Basket.RemoveLine)

	contacts := NewDomainGroup("contacts", "/contacts").
		Use(middleware.RequireBuyer(), middleware.SpanAttributes()).
		GET("", h.Contact.List).
		POST("", h.Contact.Create).
		DELETE("/:id", h.Contact.Delete)

	orders := NewDomainGroup("orders", "/orders")
	// status changes come from shop staff and administrators, named by X-Actor
	orders.POST("/:id/status", h.Order.Transition)
	orders.Group("buyer-orders", "").
		Use(middleware.RequireBuyer(), middleware.SpanAttributes()).
		POST("", h.Order.Place).
		GET("", h.Order.List).
		GET("/:id", h.Order.Get)

	admin := NewDomainGroup("admin", "/admin/cache").
		POST("/flush", h.CacheAdmin.Flush).
		GET("/stats", h.CacheAdmin.Stats).
		GET("/audit", h.CacheAdmin.Audit)

	return []*DomainGroup{partner, catalog, basket, contacts, orders, admin}
}
