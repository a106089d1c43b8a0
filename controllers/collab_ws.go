package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/wayBiggger/way-bigger/collab"
	"github.com/wayBiggger/way-bigger/utils"
)

type CollabWSController struct {
	Manager *collab.Manager
	Logger  *log.Logger
}

func NewCollabWSController(manager *collab.Manager, logger *log.Logger) *CollabWSController {
	return &CollabWSController{
		Manager: manager,
		Logger:  logger,
	}
}

// UpgradeRequired rejects plain HTTP requests on the websocket route
func (wc *CollabWSController) UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWS runs the read loop for one collaboration connection. Every
// inbound frame is handed to the manager; the manager owns all routing
// and error reporting, so a bad message never terminates the loop here.
func (wc *CollabWSController) HandleWS(c *websocket.Conn) {
	userID := c.Params("user_id")
	if userID == "" {
		c.Close()
		return
	}

	wc.Manager.Connect(userID, c)
	// Tied to this connection: if the user reconnects, the replacement
	// registration survives this loop's exit.
	defer wc.Manager.DisconnectConn(userID, c)

	for {
		messageType, raw, err := c.ReadMessage()
		if err != nil {
			// Normal close or broken pipe; cleanup happens in the deferred
			// teardown
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		wc.Manager.HandleMessage(userID, raw)
	}
}

// Health reports live connection and room counts
func (wc *CollabWSController) Health(c *fiber.Ctx) error {
	connections, rooms := wc.Manager.Stats()
	return c.JSON(fiber.Map{
		"status":             "healthy",
		"active_connections": connections,
		"active_rooms":       rooms,
	})
}

// ProjectParticipants returns the user IDs currently present in a room
func (wc *CollabWSController) ProjectParticipants(c *fiber.Ctx) error {
	projectID := c.Params("project_id")
	members := wc.Manager.Members(projectID)
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"project_id":   projectID,
		"participants": members,
		"count":        len(members),
	}))
}
