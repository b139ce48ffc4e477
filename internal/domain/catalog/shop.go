package catalog

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
)

// ShopIdentity identifies the shop a partner publishes price lists for.
// A partner account owns exactly one shop.
type ShopIdentity struct {
	PartnerID uuid.UUID
	Name      string
}

// LockKey returns the key used to serialize writes to the partner's shop.
func (s ShopIdentity) LockKey() string {
	return ShopLockKey(s.PartnerID)
}

// ShopLockKey returns the mutual exclusion key for the shop owned by partnerID.
func ShopLockKey(partnerID uuid.UUID) string {
	return "shop:" + partnerID.String()
}

// Shop is a partner's storefront. Shops are never hard-deleted; buyers only
// see shops whose Active flag is set.
type Shop struct {
	shared.BaseAggregateRoot
	Name      string    `gorm:"type:varchar(100);not null"`
	PartnerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	FeedURL   string    `gorm:"type:varchar(500)"`
	Active    bool      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Shop) TableName() string {
	return "shops"
}

// NewShop creates an active shop for the given identity
func NewShop(identity ShopIdentity) (*Shop, error) {
	name := strings.TrimSpace(identity.Name)
	if name == "" {
		return nil, shared.NewValidationError("INVALID_SHOP", "Shop name cannot be empty")
	}
	if utf8.RuneCountInString(name) > 100 {
		return nil, shared.NewValidationError("INVALID_SHOP", "Shop name cannot exceed 100 characters")
	}
	if identity.PartnerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_SHOP", "Shop must belong to a partner")
	}
	return &Shop{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		PartnerID:         identity.PartnerID,
		Active:            true,
	}, nil
}

// Identity returns the shop's identity
func (s *Shop) Identity() ShopIdentity {
	return ShopIdentity{PartnerID: s.PartnerID, Name: s.Name}
}

// Rename applies the name from the latest price list. Reports whether it changed.
func (s *Shop) Rename(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == s.Name {
		return false
	}
	s.Name = name
	s.touch()
	return true
}

// SetActive toggles buyer visibility. Reports whether it changed.
func (s *Shop) SetActive(active bool) bool {
	if s.Active == active {
		return false
	}
	s.Active = active
	s.touch()
	return true
}

// SetFeedURL records where the shop's price list is published.
func (s *Shop) SetFeedURL(url string) bool {
	if s.FeedURL == url {
		return false
	}
	s.FeedURL = url
	s.touch()
	return true
}

func (s *Shop) touch() {
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
}
