package router

import (
	"github.com/quillhaven/quillhaven/app/controllers"
	"github.com/quillhaven/quillhaven/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Public article pages; gating happens per-article in the controller.
	app.Get("/articles", loggedInMiddleware, controllers.HandleArticles)
	app.Get("/article/:uuid", loggedInMiddleware, controllers.HandleArticleView)
	app.Get("/pricing", loggedInMiddleware, controllers.HandlePricing)

	// Auth
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post("/webhooks/billing", controllers.HandleBillingWebhook)
}
