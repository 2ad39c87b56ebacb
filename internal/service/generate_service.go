package service

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/tunewave/api/internal/client"
	"github.com/tunewave/api/internal/model"
	"github.com/tunewave/api/internal/store"
)

// StorageError reports a failed placeholder write after the upstream job
// was already accepted. TaskID survives so the accepted job is not lost.
type StorageError struct {
	TaskID string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("database_error: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// GenerateService dispatches generation jobs to the external music service
// with a callback address that embeds the authenticated owner identity.
type GenerateService struct {
	dispatcher   client.MusicDispatcher
	tracks       store.TrackStore
	callbackBase string
}

func NewGenerateService(dispatcher client.MusicDispatcher, tracks store.TrackStore, callbackBase string) *GenerateService {
	return &GenerateService{
		dispatcher:   dispatcher,
		tracks:       tracks,
		callbackBase: strings.TrimRight(callbackBase, "/"),
	}
}

// CallbackURL returns the delivery address for one owner's callbacks.
func (s *GenerateService) CallbackURL(userID string) string {
	return fmt.Sprintf("%s/callbacks/suno?uid=%s", s.callbackBase, url.QueryEscape(userID))
}

// Start forwards a generation request upstream and records the pending
// job. userID must come from a verified token; a client-asserted user_id
// in the body is never used for authorization, only mismatch-logged.
func (s *GenerateService) Start(ctx context.Context, userID string, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	if req.UserID != "" && req.UserID != userID {
		log.Printf("[Generate] User ID mismatch: token=%s body=%s, using token identity", userID, req.UserID)
	}

	style := req.Style
	if !req.CustomMode {
		style = req.Prompt
	}

	taskID, err := s.dispatcher.Generate(ctx, &client.GenerateJobRequest{
		Prompt:       req.Prompt,
		Model:        req.Model,
		CustomMode:   req.CustomMode,
		Instrumental: req.Instrumental,
		Style:        style,
		Title:        req.Title,
		NegativeTags: req.NegativeTags,
		CallBackURL:  s.CallbackURL(userID),
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch generation: %w", err)
	}

	log.Printf("[Generate] Task %s queued for user %s", taskID, userID)

	if err := s.tracks.CreatePlaceholder(ctx, taskID, userID, req.Title); err != nil {
		return nil, &StorageError{TaskID: taskID, Err: err}
	}

	return &model.GenerateResponse{
		Status: "queued",
		TaskID: taskID,
	}, nil
}
