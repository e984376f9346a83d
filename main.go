package main

import (
	"fmt"
	"log"

	"github.com/gofiber/contrib/swagger"

	"github.com/ManuelReschke/Recurro/app/repository"
	"github.com/ManuelReschke/Recurro/internal/pkg/cache"
	"github.com/ManuelReschke/Recurro/internal/pkg/cron"
	"github.com/ManuelReschke/Recurro/internal/pkg/database"
	"github.com/ManuelReschke/Recurro/internal/pkg/dunning"
	"github.com/ManuelReschke/Recurro/internal/pkg/env"
	"github.com/ManuelReschke/Recurro/internal/pkg/router"
	"github.com/ManuelReschke/Recurro/internal/pkg/whatsapp"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	app := NewApplication()

	manager := cron.GetManager()
	db := database.GetDB()
	manager.Configure(dunning.NewExecutorFromDB(db, whatsapp.NewNotifierFromDB(db)))
	manager.Start()
	defer manager.Stop()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // webhook and admin JSON only
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

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
