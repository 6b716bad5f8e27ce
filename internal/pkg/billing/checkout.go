package billing

import (
	"context"
	"errors"
	"strconv"

	"github.com/quillhaven/quillhaven/app/models"
	"github.com/quillhaven/quillhaven/internal/pkg/entitlements"
)

var (
	// ErrUnknownTier marks a checkout request for a tier with no configured
	// provider price.
	ErrUnknownTier = errors.New("billing: no price configured for tier")

	// ErrNoBillingProfile marks a portal request for a user the provider has
	// never seen.
	ErrNoBillingProfile = errors.New("billing: user has no billing profile at provider")
)

// StartCheckout creates a hosted checkout session for the given tier. The
// session metadata carries the user id and price id so the completed webhook
// can be tied back even when the provider creates a brand-new customer.
func (s *Service) StartCheckout(ctx context.Context, userID uint, tierName string) (*CheckoutSession, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	priceID, ok := s.cfg.PriceForTier(tierName)
	if !ok {
		return nil, ErrUnknownTier
	}

	metadata := map[string]string{
		"user_id":  strconv.FormatUint(uint64(userID), 10),
		"price_id": priceID,
		"tier":     string(entitlements.ParseTier(tierName)),
	}
	return s.provider.CreateCheckoutSession(ctx, user.Email, priceID, metadata)
}

// PortalURL creates a billing-portal session for the user and returns its
// redirect URL. A record without a stored customer id falls back to an email
// lookup at the provider and backfills the id on success.
func (s *Service) PortalURL(ctx context.Context, userID uint) (string, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	record, err := s.repo.GetOrCreateRecord(userID)
	if err != nil {
		return "", err
	}

	customerID := record.ProviderCustomerID
	if customerID == "" {
		cust, err := s.provider.FindCustomerByEmail(ctx, user.Email)
		if err != nil {
			return "", err
		}
		if cust == nil || cust.Deleted {
			return "", ErrNoBillingProfile
		}
		customerID = cust.ID
		record.ProviderCustomerID = customerID
		if err := s.repo.SaveRecord(record); err != nil {
			return "", err
		}
	}

	return s.provider.CreatePortalSession(ctx, customerID, s.cfg.PortalReturnURL)
}

// RecordWebhookEvent verifies nothing itself; callers parse and verify first.
// It records the event for dedup and returns false when this delivery is a
// replay of an already-recorded event.
func (s *Service) RecordWebhookEvent(eventID string, eventType EventType, payload []byte) (bool, error) {
	return s.repo.CreateWebhookEvent(&models.BillingWebhookEvent{
		ProviderEventID: eventID,
		EventType:       string(eventType),
		PayloadJSON:     string(payload),
	})
}

// MarkWebhookProcessed stamps a recorded event with its processing result.
func (s *Service) MarkWebhookProcessed(eventID string, processingErr error) error {
	return s.repo.MarkWebhookProcessed(eventID, processingErr)
}

// VerifyWebhook parses and signature-checks an inbound webhook payload.
func (s *Service) VerifyWebhook(payload []byte, signatureHeader string) (Event, error) {
	return s.provider.ParseWebhook(payload, signatureHeader)
}
