package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tunewave/api/internal/middleware"
	"github.com/tunewave/api/internal/model"
	"github.com/tunewave/api/internal/store"
	"github.com/tunewave/api/pkg/response"
)

type LibraryHandler struct {
	tracks store.TrackStore
}

func NewLibraryHandler(tracks store.TrackStore) *LibraryHandler {
	return &LibraryHandler{tracks: tracks}
}

// List handles GET /api/tracks: the caller's tracks, newest first.
func (h *LibraryHandler) List(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return response.Unauthorized(c, "unauthenticated")
	}

	limit := c.QueryInt("limit", 50)

	tracks, err := h.tracks.ListByUser(c.Context(), userID, limit)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	if tracks == nil {
		tracks = []*model.Track{}
	}

	return response.OK(c, fiber.Map{
		"tracks": tracks,
		"count":  len(tracks),
	})
}
