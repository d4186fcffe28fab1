package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamcollab/identity"
	"teamcollab/middleware"
	"teamcollab/services"
	"teamcollab/utils"
)

type AuthController struct {
	Resolver *identity.Resolver
	Logger   *logrus.Entry
}

func NewAuthController(resolver *identity.Resolver, logger *logrus.Entry) *AuthController {
	return &AuthController{
		Resolver: resolver,
		Logger:   logger,
	}
}

// Sync registers or refreshes the local user behind the bearer token. The
// body is optional; an empty one just provisions the user.
func (ac *AuthController) Sync(c *fiber.Ctx) error {
	token, err := middleware.BearerToken(c, false)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	var req services.SyncInput
	if len(c.Body()) > 0 {
		if err := utils.ParseAndValidate(c, &req); err != nil {
			return utils.ErrorResponse(c, err)
		}
	}

	user, err := ac.Resolver.Sync(c.UserContext(), token, req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	ac.Logger.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user synced")
	return c.JSON(user)
}
