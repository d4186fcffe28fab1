package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"teamcollab/apperror"
)

// GenerateRateLimitKey creates a unique key for rate limiting
func GenerateRateLimitKey(userKey, path string) string {
	return fmt.Sprintf("rl:%s:%s", userKey, path)
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// ErrorResponse writes err using the shared error body. Internal errors are
// logged and reported before the generic body goes out.
func ErrorResponse(c *fiber.Ctx, err error) error {
	appErr := apperror.As(err)
	if appErr.Kind == apperror.KindInternal {
		LogError("request_failed", err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
	}
	return c.Status(apperror.HTTPStatus(appErr.Kind)).JSON(apperror.ToBody(appErr))
}

// ParseID parses a positive database id, rejecting anything malformed.
func ParseID(s string) (uint, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "undefined" || s == "null" {
		return 0, apperror.BadRequest(apperror.CodeInvalidID, "id is required")
	}
	i, err := strconv.ParseUint(s, 10, 32)
	if err != nil || i == 0 {
		return 0, apperror.BadRequest(apperror.CodeInvalidID, fmt.Sprintf("invalid id %q", s))
	}
	return uint(i), nil
}
