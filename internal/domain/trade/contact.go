package trade

import (
	"strings"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
)

// Contact is a buyer's saved delivery address
type Contact struct {
	shared.BaseEntity
	BuyerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	City      string    `gorm:"type:varchar(50);not null"`
	Street    string    `gorm:"type:varchar(100);not null"`
	House     string    `gorm:"type:varchar(15)"`
	Structure string    `gorm:"type:varchar(15)"`
	Building  string    `gorm:"type:varchar(15)"`
	Apartment string    `gorm:"type:varchar(15)"`
	Phone     string    `gorm:"type:varchar(20);not null"`
}

// TableName returns the table name for GORM
func (Contact) TableName() string {
	return "contacts"
}

// NewContact creates a contact from an address
func NewContact(buyerID uuid.UUID, addr DeliveryAddress) (*Contact, error) {
	addr = trimAddress(addr)
	if buyerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CONTACT", "Contact must belong to a buyer")
	}
	switch {
	case addr.City == "":
		return nil, shared.NewValidationError("INVALID_CONTACT", "City is required")
	case addr.Street == "":
		return nil, shared.NewValidationError("INVALID_CONTACT", "Street is required")
	case addr.Phone == "":
		return nil, shared.NewValidationError("INVALID_CONTACT", "Phone is required")
	}
	return &Contact{
		BaseEntity: shared.NewBaseEntity(),
		BuyerID:    buyerID,
		City:       addr.City,
		Street:     addr.Street,
		House:      addr.House,
		Structure:  addr.Structure,
		Building:   addr.Building,
		Apartment:  addr.Apartment,
		Phone:      addr.Phone,
	}, nil
}

// Address returns the delivery snapshot of the contact
func (c *Contact) Address() DeliveryAddress {
	return DeliveryAddress{
		City:      c.City,
		Street:    c.Street,
		House:     c.House,
		Structure: c.Structure,
		Building:  c.Building,
		Apartment: c.Apartment,
		Phone:     c.Phone,
	}
}

func trimAddress(a DeliveryAddress) DeliveryAddress {
	return DeliveryAddress{
		City:      strings.TrimSpace(a.City),
		Street:    strings.TrimSpace(a.Street),
		House:     strings.TrimSpace(a.House),
		Structure: strings.TrimSpace(a.Structure),
		Building:  strings.TrimSpace(a.Building),
		Apartment: strings.TrimSpace(a.Apartment),
		Phone:     strings.TrimSpace(a.Phone),
	}
}
