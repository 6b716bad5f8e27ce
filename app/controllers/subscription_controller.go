package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/quillhaven/quillhaven/internal/pkg/billing"
	"github.com/quillhaven/quillhaven/internal/pkg/session"
	"github.com/quillhaven/quillhaven/internal/pkg/usercontext"
)

var billingService *billing.Service

// InitializeBillingController wires the billing service used by the
// subscription handlers. Must run before the router is installed.
func InitializeBillingController(svc *billing.Service) {
	billingService = svc
}

type checkoutRequest struct {
	Tier string `json:"tier" form:"tier"`
}

// HandleCheckout creates a hosted checkout session for the requested tier and
// returns its URL.
func HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Tier) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tier_required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := billingService.StartCheckout(ctx, userCtx.UserID, req.Tier)
	if err != nil {
		if errors.Is(err, billing.ErrUnknownTier) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_tier"})
		}
		log.Printf("[Billing] checkout for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
	}

	return c.JSON(fiber.Map{"url": sess.URL})
}

// HandleBillingWebhook receives provider events. A bad signature is the only
// condition rejected back to the provider; everything after verification is
// acknowledged so the provider does not retry forever, with failures recorded
// on the stored event instead.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	ev, err := billingService.VerifyWebhook(rawBody, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		}
		// Verified but undecodable payload. Nothing actionable; acknowledge.
		log.Printf("[Billing] webhook decode failed: %v", err)
		return c.JSON(fiber.Map{"received": true})
	}

	created, err := billingService.RecordWebhookEvent(ev.ID, ev.Type, rawBody)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.JSON(fiber.Map{"received": true, "duplicate": true})
	}

	if ev.Type == billing.EventIgnored {
		_ = billingService.MarkWebhookProcessed(ev.ID, nil)
		return c.JSON(fiber.Map{"received": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, procErr := billingService.ProcessEvent(ctx, ev)
	_ = billingService.MarkWebhookProcessed(ev.ID, procErr)
	if procErr != nil {
		log.Printf("[Billing] event %s (%s) failed: %v", ev.ID, ev.Type, procErr)
	} else if outcome.Action == billing.ActionApplied {
		log.Printf("[Billing] event %s applied: user=%d tier=%s status=%s", ev.ID, outcome.UserID, outcome.Tier, outcome.Status)
	}

	return c.JSON(fiber.Map{"received": true})
}

// HandleSubscriptionCancel flags the current user's subscription to lapse at
// period end.
func HandleSubscriptionCancel(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	record, err := billingService.Cancel(ctx, userCtx.UserID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrUserNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
		case errors.Is(err, billing.ErrNothingToCancel):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "nothing_to_cancel"})
		default:
			log.Printf("[Billing] cancel for user %d failed: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cancel_failed"})
		}
	}

	return c.JSON(fiber.Map{
		"message":  "Subscription will be canceled at the end of the current period",
		"end_date": record.PeriodEnd,
		"tier":     record.Tier,
		"status":   record.Status,
	})
}

// HandleSubscriptionStatus returns the user's current subscription state,
// refreshed against the provider where possible.
func HandleSubscriptionStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	view, err := billingService.Status(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
		}
		log.Printf("[Billing] status for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_failed"})
	}

	// Keep the session's cached tier in step with what was just resolved.
	_ = session.SetSessionValue(c, "user_tier", view.Tier)

	return c.JSON(view)
}

// HandleBillingPortal redirects the user to the provider's billing portal.
func HandleBillingPortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	url, err := billingService.PortalURL(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrNoBillingProfile) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_billing_profile"})
		}
		log.Printf("[Billing] portal for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "portal_failed"})
	}

	return c.Redirect(url, fiber.StatusSeeOther)
}
