package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	"github.com/quillhaven/quillhaven/app/controllers"
	"github.com/quillhaven/quillhaven/app/repository"
	"github.com/quillhaven/quillhaven/internal/pkg/billing"
	"github.com/quillhaven/quillhaven/internal/pkg/cache"
	"github.com/quillhaven/quillhaven/internal/pkg/database"
	"github.com/quillhaven/quillhaven/internal/pkg/env"
	"github.com/quillhaven/quillhaven/internal/pkg/metrics/counter"
	"github.com/quillhaven/quillhaven/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())

	billingCfg := billing.ConfigFromEnv()
	provider := billing.NewStripeProvider(billingCfg)
	controllers.InitializeBillingController(billing.NewServiceFromDB(database.GetDB(), provider, billingCfg))

	counter.StartFlusher(context.Background(), time.Minute)

	engine := html.New("./views", ".html")
	app := fiber.New(fiber.Config{
		Views: engine,
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())
	app.Static("/", "./public/assets")

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}
