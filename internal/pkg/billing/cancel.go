package billing

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/quillhaven/quillhaven/app/models"
	"github.com/quillhaven/quillhaven/internal/pkg/entitlements"
)

var (
	// ErrUserNotFound marks a billing operation against an unknown user id.
	ErrUserNotFound = errors.New("billing: user not found")

	// ErrNothingToCancel marks a cancel request for a user with no paid
	// subscription anywhere, local or at the provider.
	ErrNothingToCancel = errors.New("billing: no active subscription to cancel")
)

// Cancel flags the user's subscription to lapse at period end. The call is
// idempotent: cancelling an already-cancelled subscription returns the current
// record without touching the provider again.
//
// Discovery runs as a ladder: the stored subscription id first, then the
// provider's active subscriptions for the stored customer id, then a customer
// lookup by the user's email when no customer id is stored either. When the
// provider no longer knows the subscription at all, the record is settled
// locally so the user is not stuck paying for a ghost.
func (s *Service) Cancel(ctx context.Context, userID uint) (*models.UserSubscription, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	record, err := s.repo.GetRecordByUserID(userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNothingToCancel
	}
	if record.Status == models.SubscriptionStatusCanceled {
		return record, nil
	}

	subID := record.ProviderSubscriptionID
	customerID := record.ProviderCustomerID
	if subID == "" && customerID == "" {
		// A record with no provider references can still have a live
		// subscription, keyed by the email used at checkout.
		cust, err := s.provider.FindCustomerByEmail(ctx, user.Email)
		if err != nil {
			return nil, err
		}
		if cust != nil && !cust.Deleted {
			customerID = cust.ID
			record.ProviderCustomerID = customerID
		}
	}
	if subID == "" && customerID != "" {
		subs, err := s.provider.ListActiveSubscriptions(ctx, customerID, 1)
		if err != nil {
			return nil, err
		}
		if len(subs) > 0 {
			subID = subs[0].ID
			record.ProviderSubscriptionID = subID
		}
	}

	if subID == "" {
		// No provider-side subscription exists. A paid local record is
		// settled in place; a free one has nothing to cancel.
		if !entitlements.IsPaid(entitlements.ParseTier(record.Tier)) {
			return nil, ErrNothingToCancel
		}
		s.settleLocalCancel(record)
		if err := s.repo.SaveRecord(record); err != nil {
			return nil, err
		}
		return record, nil
	}

	sub, err := s.provider.CancelAtPeriodEnd(ctx, subID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionGone) {
			log.Printf("[Billing] cancel for user %d: subscription %s gone at provider, settling locally", userID, subID)
			record.ProviderSubscriptionID = ""
			s.settleLocalCancel(record)
			if err := s.repo.SaveRecord(record); err != nil {
				return nil, err
			}
			return record, nil
		}
		return nil, err
	}

	s.applySubscriptionState(record, sub)
	record.Status = models.SubscriptionStatusCanceled
	if err := s.repo.SaveRecord(record); err != nil {
		return nil, err
	}
	return record, nil
}

// settleLocalCancel marks a record cancelled without provider confirmation.
// An existing period end is kept so paid time runs out naturally; otherwise
// the grace window bounds the remaining access.
func (s *Service) settleLocalCancel(record *models.UserSubscription) {
	record.Status = models.SubscriptionStatusCanceled
	if record.PeriodEnd == nil {
		end := time.Now().UTC().Add(s.cfg.GraceWindow)
		record.PeriodEnd = &end
	}
}
