package controller

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"teamcollab/models"
	"teamcollab/realtime"
)

type RelayController struct {
	Relay  *realtime.Relay
	Logger *logrus.Entry

	// ctx bounds every connection; cancelling it closes them.
	ctx context.Context
}

func NewRelayController(ctx context.Context, relay *realtime.Relay, logger *logrus.Entry) *RelayController {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RelayController{
		Relay:  relay,
		Logger: logger,
		ctx:    ctx,
	}
}

// RequireUpgrade lets only websocket handshakes through to Handle.
func (rc *RelayController) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle serves an upgraded connection. The user was resolved before the
// upgrade and travels in the connection locals.
func (rc *RelayController) Handle() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		user, ok := conn.Locals("user").(*models.User)
		if !ok || user == nil {
			rc.Logger.Warn("websocket connection without a resolved user")
			_ = conn.Close()
			return
		}
		rc.Relay.Serve(rc.ctx, conn, user)
	})
}
