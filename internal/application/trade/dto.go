package trade

import (
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/trade"
	"github.com/shopspring/decimal"
)

// BasketLineView is a basket line joined with the live listing
type BasketLineView struct {
	ListingID   uuid.UUID       `json:"listing_id"`
	ShopID      uuid.UUID       `json:"shop_id"`
	ShopName    string          `json:"shop_name"`
	ProductName string          `json:"product_name"`
	Model       string          `json:"model"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Available   int             `json:"available"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// BasketView is the buyer's current basket
type BasketView struct {
	BuyerID       uuid.UUID        `json:"buyer_id"`
	Lines         []BasketLineView `json:"lines"`
	TotalQuantity int              `json:"total_quantity"`
	Total         decimal.Decimal  `json:"total"`
}

// ContactView is a saved delivery contact
type ContactView struct {
	ID uuid.UUID `json:"id"`
	trade.DeliveryAddress
	CreatedAt time.Time `json:"created_at"`
}

// OrderLineView is one frozen order line
type OrderLineView struct {
	ListingID    uuid.UUID       `json:"listing_id"`
	ShopID       uuid.UUID       `json:"shop_id"`
	ProductName  string          `json:"product_name"`
	Model        string          `json:"model"`
	CategoryName string          `json:"category_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// OrderView is an order with its lines and lifecycle timestamps
type OrderView struct {
	ID          uuid.UUID             `json:"id"`
	BuyerID     uuid.UUID             `json:"buyer_id"`
	ContactID   uuid.UUID             `json:"contact_id"`
	Delivery    trade.DeliveryAddress `json:"delivery"`
	Status      string                `json:"status"`
	Total       decimal.Decimal       `json:"total"`
	ItemCount   int                   `json:"item_count"`
	Lines       []OrderLineView       `json:"lines"`
	CreatedAt   time.Time             `json:"created_at"`
	ConfirmedAt *time.Time            `json:"confirmed_at,omitempty"`
	AssembledAt *time.Time            `json:"assembled_at,omitempty"`
	SentAt      *time.Time            `json:"sent_at,omitempty"`
	DeliveredAt *time.Time            `json:"delivered_at,omitempty"`
	CancelledAt *time.Time            `json:"cancelled_at,omitempty"`
}

// ListOrdersQuery pages through orders, optionally by status
type ListOrdersQuery struct {
	Page     int
	PageSize int
	Status   string
}

func toBasketView(buyerID uuid.UUID, basket *trade.Basket, listings map[uuid.UUID]*catalog.ProductListing) *BasketView {
	view := &BasketView{
		BuyerID: buyerID,
		Lines:   make([]BasketLineView, 0),
		Total:   decimal.Zero,
	}
	if basket == nil {
		return view
	}
	for _, line := range basket.Lines {
		l, ok := listings[line.ListingID]
		if !ok {
			continue
		}
		subtotal := l.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		lv := BasketLineView{
			ListingID: l.ID,
			ShopID:    l.ShopID,
			UnitPrice: l.Price,
			Available: l.Quantity,
			Quantity:  line.Quantity,
			Subtotal:  subtotal,
		}
		if l.Shop != nil {
			lv.ShopName = l.Shop.Name
		}
		if l.Product != nil {
			lv.ProductName = l.Product.Name
			lv.Model = l.Product.Model
		}
		view.Lines = append(view.Lines, lv)
		view.TotalQuantity += line.Quantity
		view.Total = view.Total.Add(subtotal)
	}
	return view
}

func toContactView(c *trade.Contact) ContactView {
	return ContactView{ID: c.ID, DeliveryAddress: c.Address(), CreatedAt: c.CreatedAt}
}

// ToOrderView converts an order loaded with its lines
func ToOrderView(o *trade.Order) OrderView {
	return toOrderView(o, nil)
}

// toOrderView converts an order, keeping only the lines of shopID when set
func toOrderView(o *trade.Order, shopID *uuid.UUID) OrderView {
	v := OrderView{
		ID:          o.ID,
		BuyerID:     o.BuyerID,
		ContactID:   o.ContactID,
		Delivery:    o.Delivery,
		Status:      string(o.Status),
		Total:       o.Total,
		ItemCount:   o.ItemCount(),
		Lines:       make([]OrderLineView, 0, len(o.Lines)),
		CreatedAt:   o.CreatedAt,
		ConfirmedAt: o.ConfirmedAt,
		AssembledAt: o.AssembledAt,
		SentAt:      o.SentAt,
		DeliveredAt: o.DeliveredAt,
		CancelledAt: o.CancelledAt,
	}
	for _, l := range o.Lines {
		if shopID != nil && l.ShopID != *shopID {
			continue
		}
		v.Lines = append(v.Lines, OrderLineView{
			ListingID:    l.ListingID,
			ShopID:       l.ShopID,
			ProductName:  l.ProductName,
			Model:        l.Model,
			CategoryName: l.CategoryName,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			Subtotal:     l.Subtotal,
		})
	}
	return v
}
