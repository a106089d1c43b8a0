package main

import (
	"context"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/wayBiggger/way-bigger/collab"
	"github.com/wayBiggger/way-bigger/config"
	"github.com/wayBiggger/way-bigger/middleware"
	"github.com/wayBiggger/way-bigger/routes"
	"github.com/wayBiggger/way-bigger/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "SERVER: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Collaboration manager over the GORM-backed store
	store := collab.NewGormStore(config.DB, log.New(os.Stdout, "STORE: ", log.LstdFlags))
	manager := collab.NewManager(store, log.New(os.Stdout, "COLLAB: ", log.LstdFlags))

	// Start the expired lock sweeper
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lockWorker := worker.NewLockWorker(config.DB, config.AppConfig.FileLockTimeout, log.New(os.Stdout, "LOCKS: ", log.LstdFlags))
	go lockWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, manager)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
