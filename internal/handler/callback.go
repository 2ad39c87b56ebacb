package handler

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/tunewave/api/internal/model"
	"github.com/tunewave/api/internal/service"
	"github.com/tunewave/api/pkg/response"
)

type CallbackHandler struct {
	service *service.CallbackService
}

func NewCallbackHandler(svc *service.CallbackService) *CallbackHandler {
	return &CallbackHandler{service: svc}
}

// Handle handles POST /callbacks/suno?uid=<owner>. The route is registered
// POST-only, so other methods never reach the body. Past envelope
// validation the response is always 200, with per-track failures reported
// inside the results array. A non-200 would trigger Suno's re-delivery.
func (h *CallbackHandler) Handle(c *fiber.Ctx) (err error) {
	// Faults outside the per-track boundary still must answer in the
	// callback's own 500 shape, not Fiber's default error body.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Callback] Handler crashed: %v", r)
			err = response.CallbackCrash(c, fmt.Errorf("%v", r))
		}
	}()

	uid := c.Query("uid")
	if uid == "" {
		log.Printf("[Callback] Missing UID in callback URL: %s", c.OriginalURL())
		return response.CallbackBad(c, "Missing UID parameter in callback URL", nil)
	}

	env, rejection := model.ParseCallbackEnvelope(c.Body())
	if rejection != nil {
		log.Printf("[Callback] Rejected envelope for user %s: %s", uid, rejection.Reason)
		return response.CallbackBad(c, rejection.Reason, rejection.Extra)
	}

	summary := h.service.Process(c.Context(), uid, env)

	return c.JSON(fiber.Map{
		"success":    true,
		"user_id":    uid,
		"task_id":    summary.TaskID,
		"processed":  summary.Processed,
		"successful": summary.Successful,
		"failed":     summary.Failed,
		"results":    summary.Results,
	})
}
