package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/tunewave/api/internal/client"
	"github.com/tunewave/api/internal/middleware"
	"github.com/tunewave/api/internal/model"
	"github.com/tunewave/api/internal/service"
	"github.com/tunewave/api/pkg/response"
)

type GenerateHandler struct {
	service   *service.GenerateService
	validator *validator.Validate
}

func NewGenerateHandler(svc *service.GenerateService, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/generate: authenticate, forward the job upstream
// with an identity-bearing callback address, record the pending task, and
// acknowledge with 202 {status:"queued", task_id}.
func (h *GenerateHandler) Start(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)
	if userID == "" {
		return response.Unauthorized(c, "unauthenticated")
	}

	result, err := h.service.Start(c.Context(), userID, &req)
	if err != nil {
		var upstreamErr *client.UpstreamError
		if errors.As(err, &upstreamErr) {
			return response.UpstreamError(c, "suno_error: "+upstreamErr.Body)
		}
		var storageErr *service.StorageError
		if errors.As(err, &storageErr) {
			// The upstream job was accepted before the write failed; hand
			// the task ID back so the caller can still correlate it.
			return response.Error(c, fiber.StatusInternalServerError, response.CodeStorageError,
				storageErr.Error(), fiber.Map{"task_id": storageErr.TaskID})
		}
		return response.UpstreamError(c, "suno_error: "+err.Error())
	}

	return response.Accepted(c, result)
}
