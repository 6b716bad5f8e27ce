package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/quillhaven/quillhaven/app/repository"
	"github.com/quillhaven/quillhaven/internal/pkg/entitlements"
	"github.com/quillhaven/quillhaven/internal/pkg/usercontext"
	"github.com/quillhaven/quillhaven/internal/pkg/utils"
)

// HandleStart renders the home page with the latest published articles.
func HandleStart(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetArticleRepository()
	articles, err := repo.ListPublished(0, 6)
	if err != nil {
		articles = nil
	}

	userCtx := usercontext.GetUserContext(c)
	readerTier := entitlements.ParseTier(userCtx.Tier)
	views := make([]articleView, 0, len(articles))
	for i := range articles {
		views = append(views, buildArticleView(&articles[i], readerTier))
	}

	return c.Render("index", pageData(c, "Home", fiber.Map{
		"Articles": views,
	}), "layouts/main")
}

// HandlePricing renders the tier overview page.
func HandlePricing(c *fiber.Ctx) error {
	return c.Render("pricing", pageData(c, "Pricing", fiber.Map{
		"Tiers": entitlements.AllTiers,
	}), "layouts/main")
}

// HandleAccount renders the account page with the current subscription state.
func HandleAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	extra := fiber.Map{
		"AvatarURL": utils.GetGravatarURL(userCtx.Email, 120),
	}
	if view, err := billingService.Status(ctx, userCtx.UserID); err == nil {
		extra["Subscription"] = view
	}

	return c.Render("account", pageData(c, "Account", extra), "layouts/main")
}

// HandleSubscriptionSuccess renders the post-checkout landing page.
func HandleSubscriptionSuccess(c *fiber.Ctx) error {
	return c.Render("subscription_success", pageData(c, "Welcome aboard", nil), "layouts/main")
}
