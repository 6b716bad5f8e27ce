package billing

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidSignature marks an inbound webhook whose signature did not
	// verify. This is the only webhook failure rejected back to the provider.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")

	// ErrSubscriptionGone marks a provider call against a subscription that no
	// longer exists on the provider side.
	ErrSubscriptionGone = errors.New("billing: subscription no longer exists at provider")
)

// Subscription is the provider-agnostic view of a provider subscription.
// PriceID carries the first line item's price.
type Subscription struct {
	ID                string
	CustomerID        string
	PriceID           string
	Status            string
	CancelAtPeriodEnd bool
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
}

// Customer is the provider-agnostic view of a provider customer.
type Customer struct {
	ID      string
	Email   string
	Deleted bool
}

// CheckoutSession is a hosted checkout session created at the provider.
type CheckoutSession struct {
	ID  string
	URL string
}

// Provider is the outbound interface to the external billing service. The
// concrete implementation lives in stripe.go; tests substitute a fake.
type Provider interface {
	// CreateCheckoutSession creates a hosted subscription checkout for the
	// given price. Metadata is attached to the session and echoed back on the
	// checkout-completed webhook.
	CreateCheckoutSession(ctx context.Context, email, priceID string, metadata map[string]string) (*CheckoutSession, error)

	// GetSubscription retrieves a subscription by id. Returns
	// ErrSubscriptionGone if the provider no longer knows the id.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// ListActiveSubscriptions returns up to limit active subscriptions for a
	// customer, most recent first.
	ListActiveSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error)

	// GetCustomer retrieves a customer by id.
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	// FindCustomerByEmail returns the first customer matching the email, or
	// nil if none exists.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)

	// CancelAtPeriodEnd flags a subscription to lapse at period end and
	// returns its updated state. Returns ErrSubscriptionGone if the
	// subscription no longer exists.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error)

	// CreatePortalSession creates a billing-portal session for the customer
	// and returns its redirect URL.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// ParseWebhook verifies the payload signature and narrows the payload
	// into one of the closed Event variants. Returns ErrInvalidSignature
	// when verification fails; unrecognized event types decode into the
	// ignored variant, not an error.
	ParseWebhook(payload []byte, signatureHeader string) (Event, error)
}
