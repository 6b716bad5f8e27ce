package billing

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quillhaven/quillhaven/app/models"
	"github.com/quillhaven/quillhaven/internal/pkg/entitlements"
)

// Service reconciles provider billing state into local subscription records.
// The provider is the source of truth; the service folds its events and query
// results into absolute overwrites of the local record, so replays and
// out-of-order deliveries converge on the same state.
type Service struct {
	repo     Repository
	provider Provider
	cfg      Config
}

func NewService(repo Repository, provider Provider, cfg Config) *Service {
	return &Service{repo: repo, provider: provider, cfg: cfg}
}

// NewServiceFromDB wires the service against the gorm-backed repository.
func NewServiceFromDB(db *gorm.DB, provider Provider, cfg Config) *Service {
	return NewService(NewRepository(db), provider, cfg)
}

// Outcome reports what ProcessEvent did with an event, for logging.
type Outcome struct {
	Action string
	UserID uint
	Tier   string
	Status string
}

const (
	ActionApplied   = "applied"
	ActionIgnored   = "ignored"
	ActionUnmatched = "unmatched"
)

// ProcessEvent applies one verified provider event to the local record it
// resolves to. Events that resolve to no local user are acknowledged without
// writes; only infrastructure failures return an error.
func (s *Service) ProcessEvent(ctx context.Context, ev Event) (Outcome, error) {
	switch ev.Type {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, ev)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.handleSubscriptionChange(ctx, ev)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, ev)
	case EventInvoicePaid:
		return s.handleInvoicePaid(ctx, ev)
	case EventInvoiceFailed:
		return s.handleInvoiceFailed(ctx, ev)
	default:
		return Outcome{Action: ActionIgnored}, nil
	}
}

// resolveRecord finds the local subscription record an event belongs to. The
// chain is subscription id, then customer id, then (when allowed) customer
// email with a provider roundtrip to learn the email if the event lacks one.
// An email match backfills the customer id onto the record. Returns (nil, nil)
// when nothing matches.
func (s *Service) resolveRecord(ctx context.Context, ev Event, allowEmail bool) (*models.UserSubscription, error) {
	if record, err := s.repo.GetRecordBySubscriptionID(ev.SubscriptionID); err != nil || record != nil {
		return record, err
	}
	if record, err := s.repo.GetRecordByCustomerID(ev.CustomerID); err != nil || record != nil {
		return record, err
	}
	if !allowEmail {
		return nil, nil
	}

	email := ev.Email
	if email == "" && ev.CustomerID != "" {
		cust, err := s.provider.GetCustomer(ctx, ev.CustomerID)
		if err != nil {
			log.Printf("[Billing] customer lookup failed for %s: %v", ev.CustomerID, err)
			return nil, nil
		}
		if cust != nil && !cust.Deleted {
			email = cust.Email
		}
	}
	if email == "" {
		return nil, nil
	}

	user, err := s.repo.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	record, err := s.repo.GetOrCreateRecord(user.ID)
	if err != nil {
		return nil, err
	}
	if ev.CustomerID != "" && record.ProviderCustomerID == "" {
		record.ProviderCustomerID = ev.CustomerID
	}
	return record, nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, ev Event) (Outcome, error) {
	// Email and price are what ties a checkout to a user and a tier. A session
	// payload missing either is a data error: report it and write nothing.
	if ev.Email == "" || ev.PriceID == "" {
		log.Printf("[Billing] checkout event %s missing email or price id, skipping", ev.ID)
		return Outcome{Action: ActionIgnored}, nil
	}

	record, err := s.resolveRecord(ctx, ev, true)
	if err != nil {
		return Outcome{}, err
	}
	if record == nil {
		log.Printf("[Billing] checkout event %s matched no local user", ev.ID)
		return Outcome{Action: ActionUnmatched}, nil
	}

	if ev.CustomerID != "" {
		record.ProviderCustomerID = ev.CustomerID
	}
	if ev.SubscriptionID != "" {
		record.ProviderSubscriptionID = ev.SubscriptionID
	}

	// Prefer the authoritative subscription state when the session already
	// references one; without a reference, the customer's newest active
	// subscription is the next best source for the real period end. Only when
	// both come up empty does a provisional active period start access, to be
	// settled by a later event.
	if ev.SubscriptionID != "" {
		if sub, err := s.provider.GetSubscription(ctx, ev.SubscriptionID); err == nil {
			s.applySubscriptionState(record, sub)
			if err := s.repo.SaveRecord(record); err != nil {
				return Outcome{}, err
			}
			return Outcome{Action: ActionApplied, UserID: record.UserID, Tier: record.Tier, Status: record.Status}, nil
		}
		log.Printf("[Billing] checkout %s: subscription fetch failed, applying provisional state", ev.ID)
	} else if ev.CustomerID != "" {
		if subs, err := s.provider.ListActiveSubscriptions(ctx, ev.CustomerID, 1); err == nil && len(subs) > 0 {
			s.applySubscriptionState(record, &subs[0])
			if err := s.repo.SaveRecord(record); err != nil {
				return Outcome{}, err
			}
			return Outcome{Action: ActionApplied, UserID: record.UserID, Tier: record.Tier, Status: record.Status}, nil
		} else if err != nil {
			log.Printf("[Billing] checkout %s: active subscription lookup failed, applying provisional state", ev.ID)
		}
	}

	now := time.Now().UTC()
	graceEnd := now.Add(s.cfg.GraceWindow)
	record.Tier = string(s.cfg.TierForPrice(ev.PriceID))
	record.Status = models.SubscriptionStatusActive
	record.PeriodStart = &now
	record.PeriodEnd = &graceEnd
	record.SnapshotJSON = snapshotJSON(ev)

	if err := s.repo.SaveRecord(record); err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: ActionApplied, UserID: record.UserID, Tier: record.Tier, Status: record.Status}, nil
}

func (s *Service) handleSubscriptionChange(ctx context.Context, ev Event) (Outcome, error) {
	record, err := s.resolveRecord(ctx, ev, true)
	if err != nil {
		return Outcome{}, err
	}
	if record == nil {
		log.Printf("[Billing] subscription event %s matched no local user", ev.ID)
		return Outcome{Action: ActionUnmatched}, nil
	}

	// A payload without line items says nothing about the tier; keep the
	// previous one instead of reading the absence as free.
	if ev.PriceID != "" {
		record.Tier = string(s.cfg.TierForPrice(ev.PriceID))
	}
	record.Status = normalizeStatus(ev.Status, record.Status)
	// A pending cancellation outranks whatever status the provider reports.
	if ev.CancelAtPeriodEnd {
		record.Status = models.SubscriptionStatusCanceled
	}
	if ev.PeriodStart != nil {
		record.PeriodStart = ev.PeriodStart
	}
	if ev.PeriodEnd != nil {
		record.PeriodEnd = ev.PeriodEnd
	}
	if ev.SubscriptionID != "" {
		record.ProviderSubscriptionID = ev.SubscriptionID
	}
	if ev.CustomerID != "" {
		record.ProviderCustomerID = ev.CustomerID
	}
	record.SnapshotJSON = snapshotJSON(ev)

	if err := s.repo.SaveRecord(record); err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: ActionApplied, UserID: record.UserID, Tier: record.Tier, Status: record.Status}, nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, ev Event) (Outcome, error) {
	record, err := s.resolveRecord(ctx, ev, true)
	if err != nil {
		return Outcome{}, err
	}
	if record == nil {
		return Outcome{Action: ActionUnmatched}, nil
	}

	now := time.Now().UTC()
	record.Tier = string(entitlements.TierFree)
	record.Status = models.SubscriptionStatusCanceled
	record.PeriodEnd = &now
	record.ProviderSubscriptionID = ""
	record.SnapshotJSON = snapshotJSON(ev)

	if err := s.repo.SaveRecord(record); err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: ActionApplied, UserID: record.UserID, Tier: record.Tier, Status: record.Status}, nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, ev Event) (Outcome, error) {
	record, err := s.resolveRecord(ctx, ev, true)
	if err != nil {
		return Outcome{}, err
	}
	if record == nil {
		log.Printf("[Billing] invoice event %s matched no local user", ev.ID)
		return Outcome{Action: ActionUnmatched}, nil
	}

	subID := ev.SubscriptionID
	if subID == "" {
		subID = record.ProviderSubscriptionID
	}

	if subID != "" {
		if sub, err := s.provider.GetSubscription(ctx, subID); err == nil {
			s.applySubscriptionState(record, sub)
		} else {
			log.Printf("[Billing] invoice %s: subscription refetch failed: %v", ev.ID, err)
		}
		record.ProviderSubscriptionID = subID
	}
	// The invoice's own line price outranks the subscription's first-item
	// price; an unmappable or absent one falls back to whatever the refetch
	// resolved, never to free.
	if tier := s.cfg.TierForPrice(ev.PriceID); tier != entitlements.TierFree {
		record.Tier = string(tier)
	}
	record.Status = models.SubscriptionStatusActive
	if ev.CustomerID != "" && record.ProviderCustomerID == "" {
		record.ProviderCustomerID = ev.CustomerID
	}

	if err := s.repo.SaveRecord(record); err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: ActionApplied, UserID: record.UserID, Tier: record.Tier, Status: record.Status}, nil
}

func (s *Service) handleInvoiceFailed(ctx context.Context, ev Event) (Outcome, error) {
	// Failed payments never create or upgrade anything, so the email fallback
	// stays off and only existing records can match.
	record, err := s.resolveRecord(ctx, ev, false)
	if err != nil {
		return Outcome{}, err
	}
	if record == nil {
		return Outcome{Action: ActionUnmatched}, nil
	}

	record.Status = models.SubscriptionStatusPastDue
	if ev.SubscriptionID != "" && record.ProviderSubscriptionID == "" {
		record.ProviderSubscriptionID = ev.SubscriptionID
	}

	if err := s.repo.SaveRecord(record); err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: ActionApplied, UserID: record.UserID, Tier: record.Tier, Status: record.Status}, nil
}

// applySubscriptionState overwrites the record's billing fields with the
// provider subscription's current state. A paid tier is never downgraded to
// free by a price the config cannot map; that only happens through an explicit
// deletion event.
func (s *Service) applySubscriptionState(record *models.UserSubscription, sub *Subscription) {
	tier := s.cfg.TierForPrice(sub.PriceID)
	if tier != entitlements.TierFree || !entitlements.IsPaid(entitlements.ParseTier(record.Tier)) {
		record.Tier = string(tier)
	}

	record.Status = normalizeStatus(sub.Status, record.Status)
	if sub.CancelAtPeriodEnd {
		record.Status = models.SubscriptionStatusCanceled
	}
	if sub.PeriodStart != nil {
		record.PeriodStart = sub.PeriodStart
	}
	if sub.PeriodEnd != nil {
		record.PeriodEnd = sub.PeriodEnd
	}
	if sub.ID != "" {
		record.ProviderSubscriptionID = sub.ID
	}
	if sub.CustomerID != "" {
		record.ProviderCustomerID = sub.CustomerID
	}
	record.SnapshotJSON = snapshotJSON(sub)
}

// normalizeStatus folds provider status vocabulary into the four local ones.
// A value outside that vocabulary keeps the previous status; guessing a
// mapping for states like "paused" would fabricate transitions the provider
// never reported.
func normalizeStatus(status, previous string) string {
	switch strings.TrimSpace(strings.ToLower(status)) {
	case "active", "trialing":
		return models.SubscriptionStatusActive
	case "past_due", "incomplete":
		return models.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	case "unpaid":
		return models.SubscriptionStatusUnpaid
	default:
		return previous
	}
}

func snapshotJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
