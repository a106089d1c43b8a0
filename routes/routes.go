package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"github.com/wayBiggger/way-bigger/collab"
	controller "github.com/wayBiggger/way-bigger/controllers"
	"github.com/wayBiggger/way-bigger/middleware"
	"github.com/wayBiggger/way-bigger/utils"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/logout", controller.Logout)
	protectedAuth.Post("/change-password", controller.ChangePassword)
	protectedAuth.Get("/me", controller.GetMe)

	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, manager *collab.Manager) {
	collabController := controller.NewCollaborationController(db, log.New(os.Stdout, "COLLAB: ", log.LstdFlags))
	gamificationController := controller.NewGamificationController(db, log.New(os.Stdout, "GAMIFY: ", log.LstdFlags))
	aiController := controller.NewAIController(db, utils.NewGeminiClient(), log.New(os.Stdout, "AI: ", log.LstdFlags))
	wsController := controller.NewCollabWSController(manager, log.New(os.Stdout, "WS: ", log.LstdFlags))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Collaboration project routes
	projects := api.Group("/collaboration/projects")
	projects.Post("/", collabController.CreateProject)
	projects.Get("/", collabController.ListProjects)
	projects.Get("/:project_id", collabController.GetProject)
	projects.Post("/:project_id/join", collabController.JoinProject)
	projects.Post("/:project_id/invite", collabController.InviteToProject)
	projects.Get("/:project_id/files", collabController.ListProjectFiles)
	projects.Post("/:project_id/files", collabController.CreateProjectFile)
	projects.Get("/:project_id/chat", collabController.GetChatHistory)
	projects.Get("/:project_id/participants", wsController.ProjectParticipants)

	// File routes
	files := api.Group("/collaboration/files")
	files.Get("/:file_id", collabController.GetFile)
	files.Get("/:file_id/history", collabController.GetFileHistory)
	files.Post("/:file_id/lock", collabController.LockFile)
	files.Post("/:file_id/unlock", collabController.UnlockFile)

	// Invitation routes
	invitations := api.Group("/collaboration/invitations")
	invitations.Get("/", collabController.ListUserInvitations)
	invitations.Post("/:invitation_id/respond", collabController.RespondToInvitation)

	// Gamification routes
	gamification := api.Group("/gamification")
	gamification.Get("/progress", gamificationController.GetProgress)
	gamification.Post("/xp", gamificationController.AwardXP)
	gamification.Post("/complete-project", gamificationController.CompleteProject)
	gamification.Get("/leaderboard", gamificationController.GetLeaderboard)
	gamification.Get("/badges", gamificationController.ListBadges)

	// AI tutor routes
	ai := api.Group("/ai")
	ai.Post("/tutor", aiController.AskTutor)
	ai.Post("/review", aiController.ReviewCode)
	ai.Get("/project-ideas", aiController.SuggestProjectIdeas)

	// WebSocket route for real-time collaboration. The user id in the path
	// is trusted here the same way the HTTP layer trusts Locals("userID");
	// the manager enforces project-level permissions on every event.
	app.Use("/ws/collaborate/:user_id", wsController.UpgradeRequired)
	app.Get("/ws/collaborate/:user_id", websocket.New(wsController.HandleWS))

	// Collaboration service health
	app.Get("/ws/health", wsController.Health)

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, manager *collab.Manager) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAuthRoutes(app, db)
	SetupAPIRoutes(app, db, manager)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
