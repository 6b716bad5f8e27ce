package billing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

func signedHeader(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestParseWebhookVerifiesSignature(t *testing.T) {
	cfg := testConfig()
	cfg.WebhookSecret = "whsec_test"
	provider := &StripeProvider{cfg: cfg}

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"customer": "cus_1",
			"customer_email": "alice@example.com",
			"subscription": "sub_1",
			"metadata": {"price_id": "price_basic"}
		}}
	}`)

	ev, err := provider.ParseWebhook(payload, signedHeader(t, payload, "whsec_test"))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if ev.Type != EventCheckoutCompleted || ev.ID != "evt_1" {
		t.Errorf("got type=%s id=%s", ev.Type, ev.ID)
	}
	if ev.Email != "alice@example.com" || ev.SubscriptionID != "sub_1" {
		t.Errorf("payload not narrowed: %+v", ev)
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	cfg := testConfig()
	cfg.WebhookSecret = "whsec_test"
	provider := &StripeProvider{cfg: cfg}

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)

	_, err := provider.ParseWebhook(payload, signedHeader(t, payload, "whsec_other"))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}

	_, err = provider.ParseWebhook(payload, "")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("missing header: err = %v, want ErrInvalidSignature", err)
	}
}
