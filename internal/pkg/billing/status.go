package billing

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/quillhaven/quillhaven/app/models"
	"github.com/quillhaven/quillhaven/internal/pkg/entitlements"
)

// fallbackPeriod bounds a record that never learned its real period end.
const fallbackPeriod = 30 * 24 * time.Hour

// SubscriptionView is the read model returned by Status and rendered on the
// account page and the status API.
type SubscriptionView struct {
	Tier        string     `json:"tier"`
	Status      string     `json:"status"`
	Paid        bool       `json:"paid"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	// Synced is false when the provider could not be reached and the view
	// reflects local state only.
	Synced bool `json:"synced"`
}

// Status returns the user's current subscription state, refreshed against the
// provider when the record carries provider references. Drift found during
// the refresh is repaired in the local record before the view is built. A
// provider outage degrades to the local record instead of failing the call.
func (s *Service) Status(ctx context.Context, userID uint) (*SubscriptionView, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	record, err := s.repo.GetOrCreateRecord(userID)
	if err != nil {
		return nil, err
	}

	synced := true
	dirty := false

	switch {
	case record.ProviderSubscriptionID != "":
		sub, err := s.provider.GetSubscription(ctx, record.ProviderSubscriptionID)
		switch {
		case err == nil:
			s.applySubscriptionState(record, sub)
			dirty = true
		case errors.Is(err, ErrSubscriptionGone):
			now := time.Now().UTC()
			record.Tier = string(entitlements.TierFree)
			record.Status = models.SubscriptionStatusCanceled
			record.PeriodEnd = &now
			record.ProviderSubscriptionID = ""
			dirty = true
		default:
			log.Printf("[Billing] status for user %d: provider unreachable, serving local state: %v", userID, err)
			synced = false
		}

	case record.ProviderCustomerID != "":
		// The record knows the customer but lost the subscription reference.
		// Adopt the customer's current active subscription if one exists.
		subs, err := s.provider.ListActiveSubscriptions(ctx, record.ProviderCustomerID, 1)
		if err != nil {
			log.Printf("[Billing] status for user %d: provider unreachable, serving local state: %v", userID, err)
			synced = false
		} else if len(subs) > 0 {
			s.applySubscriptionState(record, &subs[0])
			dirty = true
		}
	}

	// Records that went through the provisional checkout path can still lack
	// a period end; pin one down so access has a bounded horizon.
	if record.Status == models.SubscriptionStatusActive && record.PeriodEnd == nil {
		start := time.Now().UTC()
		if record.PeriodStart != nil {
			start = *record.PeriodStart
		}
		end := start.Add(fallbackPeriod)
		record.PeriodEnd = &end
		dirty = true
	}

	if dirty {
		if err := s.repo.SaveRecord(record); err != nil {
			return nil, err
		}
	}

	return &SubscriptionView{
		Tier:        record.Tier,
		Status:      record.Status,
		Paid:        entitlements.IsPaid(entitlements.ParseTier(record.Tier)),
		PeriodStart: record.PeriodStart,
		PeriodEnd:   record.PeriodEnd,
		Synced:      synced,
	}, nil
}
