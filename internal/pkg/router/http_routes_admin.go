package router

import (
	"github.com/quillhaven/quillhaven/app/controllers"
	"github.com/quillhaven/quillhaven/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin", middleware.RequireAdmin)
	adminGroup.Get("/", controllers.HandleAdminIndex)

	// Article management
	adminGroup.Get("/articles", controllers.HandleAdminArticles)
	adminGroup.Get("/articles/new", controllers.HandleAdminArticleNew)
	adminGroup.Post("/articles/store", controllers.HandleAdminArticleCreate)
	adminGroup.Post("/articles/delete/:id", controllers.HandleAdminArticleDelete)
}
