package trade

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/procurement/backend/internal/domain/trade"
	"go.uber.org/zap"
)

// ContactService manages buyers' delivery contacts
type ContactService struct {
	contacts trade.ContactRepository
	logger   *zap.Logger
}

// NewContactService creates a new ContactService
func NewContactService(contacts trade.ContactRepository, logger *zap.Logger) *ContactService {
	return &ContactService{
		contacts: contacts,
		logger:   logger,
	}
}

// Create saves a new delivery contact for the buyer
func (s *ContactService) Create(ctx context.Context, buyerID uuid.UUID, addr trade.DeliveryAddress) (*ContactView, error) {
	contact, err := trade.NewContact(buyerID, addr)
	if err != nil {
		return nil, err
	}
	if err := s.contacts.Save(ctx, contact); err != nil {
		return nil, fmt.Errorf("save contact: %w", err)
	}
	s.logger.Info("Contact created",
		zap.String("contact_id", contact.ID.String()),
		zap.String("buyer_id", buyerID.String()))
	view := toContactView(contact)
	return &view, nil
}

// List returns the buyer's contacts
func (s *ContactService) List(ctx context.Context, buyerID uuid.UUID) ([]ContactView, error) {
	contacts, err := s.contacts.FindByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	views := make([]ContactView, len(contacts))
	for i := range contacts {
		views[i] = toContactView(&contacts[i])
	}
	return views, nil
}

// Delete removes one of the buyer's contacts. Placed orders keep their own
// copy of the address.
func (s *ContactService) Delete(ctx context.Context, buyerID, id uuid.UUID) error {
	if err := s.contacts.Delete(ctx, buyerID, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewNotFoundError("contact", id)
		}
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}
