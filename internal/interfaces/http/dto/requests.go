package dto

// FeedURLRequest asks for a price list to be fetched from a URL
type FeedURLRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// ShopStateRequest toggles whether a shop accepts orders
type ShopStateRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// ListingListRequest pages through catalog listings
type ListingListRequest struct {
	ShopID     string `form:"shop_id" binding:"omitempty,uuid"`
	CategoryID string `form:"category_id" binding:"omitempty,uuid"`
	Search     string `form:"search" binding:"max=100"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// CategoryListRequest optionally scopes categories to a shop
type CategoryListRequest struct {
	ShopID string `form:"shop_id" binding:"omitempty,uuid"`
}

// OrderListRequest pages through orders
type OrderListRequest struct {
	Status   string `form:"status" binding:"omitempty,oneof=NEW CONFIRMED ASSEMBLED SENT DELIVERED CANCELLED"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// RunListRequest limits the ingestion history
type RunListRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// AddBasketLineRequest puts a listing into the basket
type AddBasketLineRequest struct {
	ListingID string `json:"listing_id" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// SetBasketQuantityRequest replaces a basket line quantity; zero removes it
type SetBasketQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0"`
}

// ContactRequest creates a delivery contact
type ContactRequest struct {
	City      string `json:"city" binding:"required,max=50"`
	Street    string `json:"street" binding:"required,max=100"`
	House     string `json:"house" binding:"max=15"`
	Structure string `json:"structure" binding:"max=15"`
	Building  string `json:"building" binding:"max=15"`
	Apartment string `json:"apartment" binding:"max=15"`
	Phone     string `json:"phone" binding:"required,max=20"`
}

// PlaceOrderRequest turns the basket into an order
type PlaceOrderRequest struct {
	ContactID string `json:"contact_id" binding:"required,uuid"`
}

// TransitionRequest moves an order to another status
type TransitionRequest struct {
	Status string `json:"status" binding:"required,oneof=NEW CONFIRMED ASSEMBLED SENT DELIVERED CANCELLED"`
}

// CacheFlushRequest drops cached reads
type CacheFlushRequest struct {
	Scope  string `json:"scope" binding:"required,oneof=all shop category"`
	ID     string `json:"id" binding:"required_unless=Scope all,omitempty,uuid"`
	Reason string `json:"reason" binding:"max=200"`
}
