package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Handler upgrades a connection subscribed to one session's progress.
// The session id comes from the route parameter, stashed in Locals by
// UpgradeMiddleware because route params are gone after the upgrade.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sessionValue := c.Locals("session_id")
		if sessionValue == nil {
			_ = c.Close()
			return
		}

		sessionID, ok := sessionValue.(uuid.UUID)
		if !ok {
			_ = c.Close()
			return
		}

		client := &Client{
			hub:       hub,
			conn:      c,
			sessionID: sessionID,
			send:      make(chan []byte, 256),
		}

		hub.register <- client

		go client.WritePump()
		client.ReadPump()
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		sessionID, err := uuid.Parse(c.Params("session"))
		if err != nil {
			return fiber.ErrBadRequest
		}

		c.Locals("allowed", true)
		c.Locals("session_id", sessionID)
		return c.Next()
	}
}
