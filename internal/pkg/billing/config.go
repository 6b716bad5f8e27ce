package billing

import (
	"strconv"
	"strings"
	"time"

	"github.com/quillhaven/quillhaven/internal/pkg/entitlements"
	"github.com/quillhaven/quillhaven/internal/pkg/env"
)

const defaultGraceDays = 7

// Config carries the immutable billing settings injected into the service.
// Price identifiers come from the provider dashboard and map 1:1 to paid
// tiers; GraceWindow is the fallback span used to synthesize a period end
// when the provider has not supplied one yet.
type Config struct {
	SecretKey     string
	WebhookSecret string

	PriceBasic   string
	PricePro     string
	PricePremium string

	SuccessURL      string
	CancelURL       string
	PortalReturnURL string

	GraceWindow time.Duration
}

// ConfigFromEnv assembles a Config from environment settings.
func ConfigFromEnv() Config {
	graceDays := defaultGraceDays
	if v, err := strconv.Atoi(env.GetEnv("BILLING_GRACE_DAYS", "")); err == nil && v > 0 {
		graceDays = v
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")

	return Config{
		SecretKey:       strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret:   strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		PriceBasic:      strings.TrimSpace(env.GetEnv("STRIPE_PRICE_BASIC", "")),
		PricePro:        strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PRO", "")),
		PricePremium:    strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PREMIUM", "")),
		SuccessURL:      env.GetEnv("STRIPE_SUCCESS_URL", base+"/subscriptions/success"),
		CancelURL:       env.GetEnv("STRIPE_CANCEL_URL", base+"/pricing"),
		PortalReturnURL: env.GetEnv("BILLING_PORTAL_RETURN_URL", base+"/account"),
		GraceWindow:     time.Duration(graceDays) * 24 * time.Hour,
	}
}

// TierForPrice maps a provider price identifier to a local tier. The mapping
// is total: empty or unknown price ids resolve to the free tier, which is an
// expected outcome rather than an error.
func (c Config) TierForPrice(priceID string) entitlements.Tier {
	switch strings.TrimSpace(priceID) {
	case "":
		return entitlements.TierFree
	case c.PriceBasic:
		return entitlements.TierBasic
	case c.PricePro:
		return entitlements.TierPro
	case c.PricePremium:
		return entitlements.TierPremium
	default:
		return entitlements.TierFree
	}
}

// PriceForTier resolves a checkout tier name (case-insensitive) to the
// configured provider price id.
func (c Config) PriceForTier(name string) (string, bool) {
	switch entitlements.ParseTier(name) {
	case entitlements.TierBasic:
		return c.PriceBasic, c.PriceBasic != ""
	case entitlements.TierPro:
		return c.PricePro, c.PricePro != ""
	case entitlements.TierPremium:
		return c.PricePremium, c.PricePremium != ""
	default:
		return "", false
	}
}
