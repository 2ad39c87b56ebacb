package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// formatValidationErrors flattens validator errors into response details.
func formatValidationErrors(err error) []fiber.Map {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]fiber.Map, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fiber.Map{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		})
	}
	return out
}
