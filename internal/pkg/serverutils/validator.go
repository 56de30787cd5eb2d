package serverutils

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// ValidateRequest runs struct-tag validation and converts the first failure
// into a client-facing ApiError.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		first := validationErrs[0]
		return NewApiError(
			fiber.StatusBadRequest,
			"VALIDATION_ERROR",
			fmt.Sprintf("field '%s' failed on the '%s' rule", first.Field(), first.Tag()),
		)
	}

	return NewApiError(fiber.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
}
