package router

import (
	"github.com/quillhaven/quillhaven/app/controllers"
	"github.com/quillhaven/quillhaven/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Public article API; bodies are gated per caller tier in the controller.
	api.Get("/articles", controllers.HandleAPIArticles)
	api.Get("/articles/:uuid", controllers.HandleAPIArticleView)

	// Subscription endpoints require a logged-in session.
	api.Post("/checkout", middleware.RequireAPISessionAuth, controllers.HandleCheckout)
	subscription := api.Group("/subscription", middleware.RequireAPISessionAuth)
	subscription.Get("/status", controllers.HandleSubscriptionStatus)
	subscription.Post("/cancel", controllers.HandleSubscriptionCancel)
	subscription.Get("/portal", controllers.HandleBillingPortal)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
