package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamcollab/middleware"
	"teamcollab/realtime"
	"teamcollab/services"
	"teamcollab/utils"
)

type MessageController struct {
	Messages *services.MessageService
	Logger   *logrus.Entry
}

func NewMessageController(messages *services.MessageService, logger *logrus.Entry) *MessageController {
	return &MessageController{
		Messages: messages,
		Logger:   logger,
	}
}

// GetHistory returns a team's chat history in the shape the relay
// broadcasts. The optional `after` query parameter pages past a message id.
func (mc *MessageController) GetHistory(c *fiber.Ctx) error {
	teamID, err := utils.ParseID(c.Params("teamId"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	var afterID uint
	if after := c.Query("after"); after != "" {
		if afterID, err = utils.ParseID(after); err != nil {
			return utils.ErrorResponse(c, err)
		}
	}

	messages, err := mc.Messages.History(c.UserContext(), middleware.CurrentUser(c), teamID, afterID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	out := make([]realtime.MessagePayload, 0, len(messages))
	for i := range messages {
		out = append(out, realtime.NewMessagePayload(&messages[i]))
	}
	return c.JSON(out)
}
