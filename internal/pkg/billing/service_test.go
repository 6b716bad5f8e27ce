package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quillhaven/quillhaven/app/models"
)

type fakeRepo struct {
	users   map[uint]*models.User
	records map[uint]*models.UserSubscription
	events  map[string]*models.BillingWebhookEvent
	saves   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:   make(map[uint]*models.User),
		records: make(map[uint]*models.UserSubscription),
		events:  make(map[string]*models.BillingWebhookEvent),
	}
}

func (r *fakeRepo) addUser(id uint, email string) {
	r.users[id] = &models.User{ID: id, Email: email}
}

func (r *fakeRepo) GetUserByID(userID uint) (*models.User, error) {
	return r.users[userID], nil
}

func (r *fakeRepo) GetUserByEmail(email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) GetRecordByUserID(userID uint) (*models.UserSubscription, error) {
	return r.records[userID], nil
}

func (r *fakeRepo) GetRecordBySubscriptionID(subscriptionID string) (*models.UserSubscription, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	for _, rec := range r.records {
		if rec.ProviderSubscriptionID == subscriptionID {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) GetRecordByCustomerID(customerID string) (*models.UserSubscription, error) {
	if customerID == "" {
		return nil, nil
	}
	for _, rec := range r.records {
		if rec.ProviderCustomerID == customerID {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) GetOrCreateRecord(userID uint) (*models.UserSubscription, error) {
	if rec, ok := r.records[userID]; ok {
		return rec, nil
	}
	rec := &models.UserSubscription{ID: userID, UserID: userID, Tier: "free"}
	r.records[userID] = rec
	return rec, nil
}

func (r *fakeRepo) SaveRecord(record *models.UserSubscription) error {
	r.records[record.UserID] = record
	r.saves++
	return nil
}

func (r *fakeRepo) CreateWebhookEvent(event *models.BillingWebhookEvent) (bool, error) {
	if _, ok := r.events[event.ProviderEventID]; ok {
		return false, nil
	}
	r.events[event.ProviderEventID] = event
	return true, nil
}

func (r *fakeRepo) MarkWebhookProcessed(providerEventID string, processingErr error) error {
	if ev, ok := r.events[providerEventID]; ok {
		now := time.Now()
		ev.ProcessedAt = &now
		if processingErr != nil {
			ev.ProcessingError = processingErr.Error()
		}
	}
	return nil
}

type fakeProvider struct {
	subs      map[string]*Subscription
	customers map[string]*Customer
	active    []Subscription

	subErr    error
	listErr   error
	cancelErr error

	getCustomerCalls int
	getSubCalls      int
	canceled         []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subs:      make(map[string]*Subscription),
		customers: make(map[string]*Customer),
	}
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, email, priceID string, metadata map[string]string) (*CheckoutSession, error) {
	return &CheckoutSession{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

func (p *fakeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	p.getSubCalls++
	if p.subErr != nil {
		return nil, p.subErr
	}
	if sub, ok := p.subs[subscriptionID]; ok {
		return sub, nil
	}
	return nil, ErrSubscriptionGone
}

func (p *fakeProvider) ListActiveSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.active, nil
}

func (p *fakeProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	p.getCustomerCalls++
	return p.customers[customerID], nil
}

func (p *fakeProvider) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	for _, c := range p.customers {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, nil
}

func (p *fakeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if p.cancelErr != nil {
		return nil, p.cancelErr
	}
	p.canceled = append(p.canceled, subscriptionID)
	sub, ok := p.subs[subscriptionID]
	if !ok {
		return nil, ErrSubscriptionGone
	}
	out := *sub
	out.CancelAtPeriodEnd = true
	return &out, nil
}

func (p *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.example/" + customerID, nil
}

func (p *fakeProvider) ParseWebhook(payload []byte, signatureHeader string) (Event, error) {
	return Event{}, errors.New("not implemented in fake")
}

func testConfig() Config {
	return Config{
		PriceBasic:   "price_basic",
		PricePro:     "price_pro",
		PricePremium: "price_premium",
		GraceWindow:  7 * 24 * time.Hour,
	}
}

func newTestService(repo *fakeRepo, provider *fakeProvider) *Service {
	return NewService(repo, provider, testConfig())
}

func timePtr(t time.Time) *time.Time { return &t }

func TestProcessCheckoutCompletedProvisionalPeriod(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	provider := newFakeProvider()
	svc := newTestService(repo, provider)

	out, err := svc.ProcessEvent(context.Background(), Event{
		Type:       EventCheckoutCompleted,
		ID:         "evt_1",
		Email:      "alice@example.com",
		CustomerID: "cus_1",
		PriceID:    "price_basic",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if out.Action != ActionApplied {
		t.Fatalf("action = %q, want applied", out.Action)
	}

	rec := repo.records[1]
	if rec == nil {
		t.Fatal("no record created")
	}
	if rec.Tier != "basic" || rec.Status != models.SubscriptionStatusActive {
		t.Errorf("got tier=%s status=%s, want basic/active", rec.Tier, rec.Status)
	}
	if rec.ProviderCustomerID != "cus_1" {
		t.Errorf("customer id not stored: %q", rec.ProviderCustomerID)
	}
	if rec.PeriodEnd == nil {
		t.Fatal("expected provisional period end")
	}
	want := time.Now().Add(7 * 24 * time.Hour)
	if diff := rec.PeriodEnd.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("period end %v not within grace window of %v", rec.PeriodEnd, want)
	}
}

func TestProcessCheckoutCompletedFetchesReferencedSubscription(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	provider := newFakeProvider()
	start := time.Now().UTC().Truncate(time.Second)
	end := start.AddDate(0, 1, 0)
	provider.subs["sub_1"] = &Subscription{
		ID: "sub_1", CustomerID: "cus_1", PriceID: "price_pro",
		Status: "active", PeriodStart: timePtr(start), PeriodEnd: timePtr(end),
	}
	svc := newTestService(repo, provider)

	_, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventCheckoutCompleted,
		ID:             "evt_1",
		Email:          "alice@example.com",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		PriceID:        "price_pro",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	rec := repo.records[1]
	if rec.Tier != "pro" {
		t.Errorf("tier = %s, want pro", rec.Tier)
	}
	if rec.PeriodEnd == nil || !rec.PeriodEnd.Equal(end) {
		t.Errorf("period end = %v, want %v", rec.PeriodEnd, end)
	}
	if rec.ProviderSubscriptionID != "sub_1" {
		t.Errorf("subscription id = %q, want sub_1", rec.ProviderSubscriptionID)
	}
}

func TestProcessSubscriptionUpdatedCancelAtPeriodEndWins(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "pro", Status: models.SubscriptionStatusActive,
		ProviderCustomerID: "cus_1", ProviderSubscriptionID: "sub_1",
	}
	svc := newTestService(repo, newFakeProvider())

	end := time.Now().UTC().AddDate(0, 1, 0)
	out, err := svc.ProcessEvent(context.Background(), Event{
		Type:              EventSubscriptionUpdated,
		ID:                "evt_2",
		SubscriptionID:    "sub_1",
		CustomerID:        "cus_1",
		PriceID:           "price_pro",
		Status:            "active",
		CancelAtPeriodEnd: true,
		PeriodEnd:         timePtr(end),
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if out.Status != models.SubscriptionStatusCanceled {
		t.Errorf("status = %s, want canceled despite provider active", out.Status)
	}
	rec := repo.records[1]
	if rec.Tier != "pro" {
		t.Errorf("tier = %s, want pro retained until period end", rec.Tier)
	}
	if rec.PeriodEnd == nil || !rec.PeriodEnd.Equal(end) {
		t.Errorf("period end = %v, want %v", rec.PeriodEnd, end)
	}
}

func TestProcessEventReplayConverges(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "free",
		ProviderCustomerID: "cus_1", ProviderSubscriptionID: "sub_1",
	}
	svc := newTestService(repo, newFakeProvider())

	ev := Event{
		Type:           EventSubscriptionUpdated,
		ID:             "evt_3",
		SubscriptionID: "sub_1",
		PriceID:        "price_premium",
		Status:         "active",
		PeriodStart:    timePtr(time.Unix(1700000000, 0).UTC()),
		PeriodEnd:      timePtr(time.Unix(1702592000, 0).UTC()),
	}

	if _, err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := *repo.records[1]
	if _, err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	second := *repo.records[1]

	if first.Tier != second.Tier || first.Status != second.Status ||
		!first.PeriodEnd.Equal(*second.PeriodEnd) || !first.PeriodStart.Equal(*second.PeriodStart) {
		t.Errorf("replay diverged: first=%+v second=%+v", first, second)
	}
}

func TestResolveByCustomerIDAvoidsProviderRoundtrip(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "basic", Status: models.SubscriptionStatusActive,
		ProviderCustomerID: "cus_1",
	}
	provider := newFakeProvider()
	svc := newTestService(repo, provider)

	_, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventSubscriptionCreated,
		ID:             "evt_4",
		SubscriptionID: "sub_new",
		CustomerID:     "cus_1",
		PriceID:        "price_basic",
		Status:         "active",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if provider.getCustomerCalls != 0 {
		t.Errorf("customer lookup called %d times, want 0 for customer-id match", provider.getCustomerCalls)
	}
	if repo.records[1].ProviderSubscriptionID != "sub_new" {
		t.Errorf("subscription id not adopted: %q", repo.records[1].ProviderSubscriptionID)
	}
}

func TestProcessSubscriptionDeleted(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "premium", Status: models.SubscriptionStatusActive,
		ProviderCustomerID: "cus_1", ProviderSubscriptionID: "sub_1",
		PeriodEnd: timePtr(time.Now().AddDate(0, 1, 0)),
	}
	svc := newTestService(repo, newFakeProvider())

	_, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventSubscriptionDeleted,
		ID:             "evt_5",
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		Status:         "canceled",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	rec := repo.records[1]
	if rec.Tier != "free" || rec.Status != models.SubscriptionStatusCanceled {
		t.Errorf("got tier=%s status=%s, want free/canceled", rec.Tier, rec.Status)
	}
	if rec.ProviderSubscriptionID != "" {
		t.Errorf("subscription id should be cleared, got %q", rec.ProviderSubscriptionID)
	}
	if rec.PeriodEnd == nil || time.Until(*rec.PeriodEnd) > time.Minute {
		t.Errorf("period end should be now, got %v", rec.PeriodEnd)
	}
}

func TestInvoicePaidBackfillsSubscriptionID(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "free", ProviderCustomerID: "cus_1",
	}
	provider := newFakeProvider()
	end := time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Second)
	provider.subs["sub_1"] = &Subscription{
		ID: "sub_1", CustomerID: "cus_1", PriceID: "price_pro",
		Status: "active", PeriodEnd: timePtr(end),
	}
	svc := newTestService(repo, provider)

	_, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventInvoicePaid,
		ID:             "evt_6",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	rec := repo.records[1]
	if rec.ProviderSubscriptionID != "sub_1" {
		t.Errorf("subscription id not backfilled: %q", rec.ProviderSubscriptionID)
	}
	if rec.Tier != "pro" || rec.Status != models.SubscriptionStatusActive {
		t.Errorf("got tier=%s status=%s, want pro/active", rec.Tier, rec.Status)
	}
}

func TestInvoicePaidNeverDowngradesPaidTier(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "premium", Status: models.SubscriptionStatusActive,
		ProviderCustomerID: "cus_1", ProviderSubscriptionID: "sub_1",
	}
	provider := newFakeProvider()
	// Price id the config cannot map; must not pull the tier down to free.
	provider.subs["sub_1"] = &Subscription{
		ID: "sub_1", CustomerID: "cus_1", PriceID: "price_legacy", Status: "active",
	}
	svc := newTestService(repo, provider)

	_, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventInvoicePaid,
		ID:             "evt_7",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	rec := repo.records[1]
	if rec.Tier != "premium" {
		t.Errorf("tier = %s, paid tier must survive unmappable price", rec.Tier)
	}
	if rec.Status != models.SubscriptionStatusActive {
		t.Errorf("status = %s, want active", rec.Status)
	}
}

func TestInvoiceFailedMarksPastDueOnly(t *testing.T) {
	end := time.Now().UTC().AddDate(0, 1, 0)
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "basic", Status: models.SubscriptionStatusActive,
		ProviderCustomerID: "cus_1", ProviderSubscriptionID: "sub_1",
		PeriodEnd: timePtr(end),
	}
	svc := newTestService(repo, newFakeProvider())

	_, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventInvoiceFailed,
		ID:             "evt_8",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	rec := repo.records[1]
	if rec.Status != models.SubscriptionStatusPastDue {
		t.Errorf("status = %s, want past_due", rec.Status)
	}
	if rec.Tier != "basic" {
		t.Errorf("tier = %s, failed payment must not change tier", rec.Tier)
	}
	if rec.PeriodEnd == nil || !rec.PeriodEnd.Equal(end) {
		t.Errorf("period end changed: %v", rec.PeriodEnd)
	}
}

func TestInvoiceFailedSkipsEmailFallback(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	provider := newFakeProvider()
	provider.customers["cus_x"] = &Customer{ID: "cus_x", Email: "alice@example.com"}
	svc := newTestService(repo, provider)

	out, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventInvoiceFailed,
		ID:             "evt_9",
		CustomerID:     "cus_x",
		SubscriptionID: "sub_x",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if out.Action != ActionUnmatched {
		t.Errorf("action = %q, want unmatched", out.Action)
	}
	if provider.getCustomerCalls != 0 {
		t.Errorf("failed invoices must not resolve via provider email lookup")
	}
	if repo.saves != 0 {
		t.Errorf("unmatched event wrote %d records, want 0", repo.saves)
	}
}

func TestUnmatchedEventWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	provider := newFakeProvider()
	svc := newTestService(repo, provider)

	out, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventSubscriptionUpdated,
		ID:             "evt_10",
		SubscriptionID: "sub_unknown",
		CustomerID:     "cus_unknown",
		Status:         "active",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if out.Action != ActionUnmatched {
		t.Errorf("action = %q, want unmatched", out.Action)
	}
	if repo.saves != 0 {
		t.Errorf("unmatched event wrote %d records, want 0", repo.saves)
	}
}

func TestIgnoredEventType(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeProvider())
	out, err := svc.ProcessEvent(context.Background(), Event{Type: EventIgnored, ID: "evt_11"})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if out.Action != ActionIgnored {
		t.Errorf("action = %q, want ignored", out.Action)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		in       string
		previous string
		want     string
	}{
		{"active", "", models.SubscriptionStatusActive},
		{"trialing", "", models.SubscriptionStatusActive},
		{"past_due", "", models.SubscriptionStatusPastDue},
		{"incomplete", "", models.SubscriptionStatusPastDue},
		{"canceled", models.SubscriptionStatusActive, models.SubscriptionStatusCanceled},
		{"incomplete_expired", "", models.SubscriptionStatusCanceled},
		{"unpaid", "", models.SubscriptionStatusUnpaid},
		// Vocabulary the mapping does not know keeps the previous status.
		{"paused", models.SubscriptionStatusActive, models.SubscriptionStatusActive},
		{"something_else", models.SubscriptionStatusPastDue, models.SubscriptionStatusPastDue},
	}
	for _, c := range cases {
		if got := normalizeStatus(c.in, c.previous); got != c.want {
			t.Errorf("normalizeStatus(%q, %q) = %q, want %q", c.in, c.previous, got, c.want)
		}
	}
}

func TestSubscriptionUpdatedMissingItemsKeepsTier(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "pro", Status: models.SubscriptionStatusActive,
		ProviderCustomerID: "cus_1", ProviderSubscriptionID: "sub_1",
	}
	svc := newTestService(repo, newFakeProvider())

	// No line items on the payload, so no price id decodes out of it.
	_, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventSubscriptionUpdated,
		ID:             "evt_12",
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		Status:         "active",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	rec := repo.records[1]
	if rec.Tier != "pro" {
		t.Errorf("tier = %s, a payload without items must not downgrade the tier", rec.Tier)
	}
	if rec.Status != models.SubscriptionStatusActive {
		t.Errorf("status = %s, want active", rec.Status)
	}
}

func TestCheckoutMissingPriceWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "premium", Status: models.SubscriptionStatusActive,
		ProviderCustomerID: "cus_1",
	}
	svc := newTestService(repo, newFakeProvider())

	out, err := svc.ProcessEvent(context.Background(), Event{
		Type:       EventCheckoutCompleted,
		ID:         "evt_13",
		Email:      "alice@example.com",
		CustomerID: "cus_1",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if out.Action != ActionIgnored {
		t.Errorf("action = %q, want ignored for a checkout without a price id", out.Action)
	}
	if repo.saves != 0 {
		t.Errorf("wrote %d records, want 0", repo.saves)
	}
	if repo.records[1].Tier != "premium" {
		t.Errorf("tier = %s, want premium untouched", repo.records[1].Tier)
	}
}

func TestCheckoutMissingEmailWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	svc := newTestService(repo, newFakeProvider())

	out, err := svc.ProcessEvent(context.Background(), Event{
		Type:       EventCheckoutCompleted,
		ID:         "evt_14",
		CustomerID: "cus_1",
		PriceID:    "price_basic",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if out.Action != ActionIgnored {
		t.Errorf("action = %q, want ignored for a checkout without an email", out.Action)
	}
	if repo.saves != 0 {
		t.Errorf("wrote %d records, want 0", repo.saves)
	}
}

func TestCheckoutAdoptsCustomersActiveSubscription(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	provider := newFakeProvider()
	end := time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Second)
	provider.active = []Subscription{{
		ID: "sub_live", CustomerID: "cus_1", PriceID: "price_pro",
		Status: "active", PeriodEnd: timePtr(end),
	}}
	svc := newTestService(repo, provider)

	// The session carries no subscription reference, but the customer already
	// has a live subscription whose period end is authoritative.
	_, err := svc.ProcessEvent(context.Background(), Event{
		Type:       EventCheckoutCompleted,
		ID:         "evt_15",
		Email:      "alice@example.com",
		CustomerID: "cus_1",
		PriceID:    "price_pro",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	rec := repo.records[1]
	if rec.ProviderSubscriptionID != "sub_live" {
		t.Errorf("subscription id = %q, want sub_live adopted from the list lookup", rec.ProviderSubscriptionID)
	}
	if rec.PeriodEnd == nil || !rec.PeriodEnd.Equal(end) {
		t.Errorf("period end = %v, want %v from the live subscription, not the grace window", rec.PeriodEnd, end)
	}
	if rec.Tier != "pro" {
		t.Errorf("tier = %s, want pro", rec.Tier)
	}
}

func TestInvoicePaidPrefersInvoiceLinePrice(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "basic", Status: models.SubscriptionStatusActive,
		ProviderCustomerID: "cus_1", ProviderSubscriptionID: "sub_1",
	}
	provider := newFakeProvider()
	provider.subs["sub_1"] = &Subscription{
		ID: "sub_1", CustomerID: "cus_1", PriceID: "price_basic", Status: "active",
	}
	svc := newTestService(repo, provider)

	_, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventInvoicePaid,
		ID:             "evt_16",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		PriceID:        "price_premium",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if rec := repo.records[1]; rec.Tier != "premium" {
		t.Errorf("tier = %s, invoice line price must outrank the subscription's", rec.Tier)
	}
}

func TestInvoicePaidDerivesTierWhenRefetchFails(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(1, "alice@example.com")
	repo.records[1] = &models.UserSubscription{
		UserID: 1, Tier: "free",
		ProviderCustomerID: "cus_1", ProviderSubscriptionID: "sub_1",
	}
	provider := newFakeProvider()
	provider.subErr = errors.New("provider down")
	svc := newTestService(repo, provider)

	_, err := svc.ProcessEvent(context.Background(), Event{
		Type:           EventInvoicePaid,
		ID:             "evt_17",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		PriceID:        "price_pro",
	})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	rec := repo.records[1]
	if rec.Tier != "pro" {
		t.Errorf("tier = %s, want pro from the invoice line price despite the failed refetch", rec.Tier)
	}
	if rec.Status != models.SubscriptionStatusActive {
		t.Errorf("status = %s, want active", rec.Status)
	}
}
