package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"teamcollab/apperror"
	"teamcollab/identity"
	"teamcollab/models"
	"teamcollab/services"
	"teamcollab/utils"
)

const (
	userKey     = "user"
	identityKey = "identity"
)

// BearerToken extracts the credential from the Authorization header. When
// allowQuery is set a `token` query parameter is accepted as well, which is
// how browsers authenticate websocket upgrades.
func BearerToken(c *fiber.Ctx, allowQuery bool) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader != "" {
		tokenParts := strings.Fields(authHeader)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			return "", apperror.Unauthenticated(apperror.CodeInvalidToken, "Invalid authorization format")
		}
		return tokenParts[1], nil
	}
	if allowQuery {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
	}
	return "", apperror.Unauthenticated(apperror.CodeMissingToken, "Authorization required")
}

// Protected resolves the bearer credential to an existing local user and
// stores it in the request locals.
func Protected(resolver *identity.Resolver) fiber.Handler {
	return protect(resolver, false)
}

// ProtectedUpgrade is Protected for the websocket endpoint.
func ProtectedUpgrade(resolver *identity.Resolver) fiber.Handler {
	return protect(resolver, true)
}

func protect(resolver *identity.Resolver, allowQuery bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := BearerToken(c, allowQuery)
		if err != nil {
			return utils.ErrorResponse(c, err)
		}

		user, id, err := resolver.Resolve(c.UserContext(), token)
		if err != nil {
			return utils.ErrorResponse(c, err)
		}

		c.Locals(userKey, user)
		c.Locals(identityKey, id)
		return c.Next()
	}
}

// CurrentUser returns the user stored by Protected, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userKey).(*models.User)
	return user
}

// Authorize rejects callers whose role is outside op's role set.
func Authorize(policy services.Policy, op services.Operation) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := policy.Authorize(CurrentUser(c), op); err != nil {
			return utils.ErrorResponse(c, err)
		}
		return c.Next()
	}
}
