package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"teamcollab/apperror"
)

var validate = validator.New()

// ValidateStruct runs the `validate` tags of s and folds the failures into a
// single BAD_REQUEST error.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperror.BadRequest(apperror.CodeValidation, err.Error())
	}

	// Format validation errors
	var errors []string
	for _, err := range validationErrors {
		field := strings.ToLower(err.Field())
		tag := err.Tag()
		param := err.Param()

		switch tag {
		case "required":
			errors = append(errors, field+" is required")
		case "min":
			errors = append(errors, field+" must be at least "+param+" characters")
		case "max":
			errors = append(errors, field+" must be at most "+param+" characters")
		case "email":
			errors = append(errors, field+" must be a valid email")
		case "oneof":
			errors = append(errors, field+" must be one of ["+param+"]")
		case "required_without":
			errors = append(errors, field+" is required when "+strings.ToLower(param)+" is missing")
		default:
			errors = append(errors, field+" is invalid")
		}
	}

	return apperror.BadRequest(apperror.CodeValidation, strings.Join(errors, ", "))
}

// ParseAndValidate decodes the request body into dst and validates it.
func ParseAndValidate(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.BadRequest(apperror.CodeInvalidBody, "Invalid request body")
	}
	return ValidateStruct(dst)
}
