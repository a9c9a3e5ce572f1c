package websocket

import (
	"time"

	"freightlink/logger"
	"freightlink/middleware"
	"freightlink/socket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Maximum wait for a message (or ping) from the client.
const pongWait = 30 * time.Second

// UpgradeGuard authenticates the websocket upgrade. The token rides in the
// query string because browsers cannot set headers on websocket requests.
func UpgradeGuard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": "error",
				"error":  "Token is required",
			})
		}

		claims, err := middleware.VerifyJWT(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": "error",
				"error":  "Invalid or expired token",
			})
		}

		uuid, _ := claims["uuid"].(string)
		if uuid == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": "error",
				"error":  "Token has no subject",
			})
		}

		c.Locals("carrier_uuid", uuid)
		return c.Next()
	}
}

// ServeWs registers the carrier connection on the hub and runs the read
// loop until the client goes away.
func ServeWs(hub *socket.Hub) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		carrierUuid, _ := conn.Locals("carrier_uuid").(string)
		if carrierUuid == "" {
			conn.Close()
			return
		}

		hub.Register(carrierUuid, conn)
		defer func() {
			hub.Unregister(carrierUuid)
			conn.Close()
		}()

		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPingHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warning("Unexpected websocket close: " + err.Error())
				}
				break
			}
		}
	})
}
