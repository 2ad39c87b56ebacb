package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tunewave/api/internal/auth"
	"github.com/tunewave/api/internal/client"
	"github.com/tunewave/api/internal/config"
	"github.com/tunewave/api/internal/handler"
	"github.com/tunewave/api/internal/middleware"
	"github.com/tunewave/api/internal/model"
	"github.com/tunewave/api/internal/service"
	"github.com/tunewave/api/internal/store"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testUserID    = "test-user-123"
)

// testApp holds all components needed for testing.
type testApp struct {
	app        *fiber.App
	tracks     *memoryTrackStore
	storage    *memoryStorage
	dispatcher *scriptedDispatcher
	audioSrv   *httptest.Server
}

// memoryTrackStore is an in-memory store.TrackStore for handler tests.
type memoryTrackStore struct {
	mu     sync.Mutex
	tracks map[string]*model.Track
}

func newMemoryTrackStore() *memoryTrackStore {
	return &memoryTrackStore{tracks: make(map[string]*model.Track)}
}

func (s *memoryTrackStore) UpsertTrack(_ context.Context, t *model.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tracks[t.ID]; ok {
		created := existing.CreatedAt
		cp := *t
		cp.CreatedAt = created
		s.tracks[t.ID] = &cp
		return nil
	}
	cp := *t
	s.tracks[t.ID] = &cp
	return nil
}

func (s *memoryTrackStore) GetTrack(_ context.Context, id string) (*model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *memoryTrackStore) CreatePlaceholder(_ context.Context, taskID, userID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[taskID]; ok {
		return nil
	}
	s.tracks[taskID] = &model.Track{
		ID:        taskID,
		UserID:    userID,
		TaskID:    taskID,
		Title:     title,
		Status:    model.TrackStatusProcessing,
		CreatedAt: time.Now(),
	}
	return nil
}

func (s *memoryTrackStore) ResolvePlaceholder(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[taskID]; ok && t.Status == model.TrackStatusProcessing {
		delete(s.tracks, taskID)
	}
	return nil
}

func (s *memoryTrackStore) FailPlaceholder(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[taskID]; ok && t.Status == model.TrackStatusProcessing {
		t.Status = model.TrackStatusFailed
	}
	return nil
}

func (s *memoryTrackStore) ListByUser(_ context.Context, userID string, limit int) ([]*model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Track
	for _, t := range s.tracks {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryTrackStore) Ping(context.Context) error { return nil }

// memoryStorage is an in-memory client.StorageClient.
type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (s *memoryStorage) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return s.GetPublicURL(key), nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *memoryStorage) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

// scriptedDispatcher returns a fixed task ID or error.
type scriptedDispatcher struct {
	taskID  string
	err     error
	lastReq *client.GenerateJobRequest
}

func (d *scriptedDispatcher) Generate(_ context.Context, req *client.GenerateJobRequest) (string, error) {
	d.lastReq = req
	if d.err != nil {
		return "", d.err
	}
	return d.taskID, nil
}

// setupApp creates a Fiber app wired like main.go but with in-memory
// storage and a scripted upstream, so tests need no running services.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Audio origin for callback downloads
	audioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.mp3":
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write(make([]byte, 5000))
		case "/empty.mp3":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(audioSrv.Close)

	tracks := newMemoryTrackStore()
	storage := newMemoryStorage()
	dispatcher := &scriptedDispatcher{taskID: "task-e2e"}
	fetcher := client.NewDownloader(&config.FetchConfig{Timeout: 5})
	validate := validator.New()

	callbackService := service.NewCallbackService(fetcher, storage, tracks, nil)
	generateService := service.NewGenerateService(dispatcher, tracks, "https://api.tunewave.test")

	callbackHandler := handler.NewCallbackHandler(callbackService)
	generateHandler := handler.NewGenerateHandler(generateService, validate)
	libraryHandler := handler.NewLibraryHandler(tracks)

	// Auth middleware, legacy HMAC only
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"database": true,
				"suno":     true,
				"r2":       true,
			},
		})
	})

	app.Post("/callbacks/suno", callbackHandler.Handle)

	api := app.Group("/api", authMiddleware.Authenticate())
	api.Post("/generate", generateHandler.Start)
	api.Get("/tracks", libraryHandler.List)

	return &testApp{
		app:        app,
		tracks:     tracks,
		storage:    storage,
		dispatcher: dispatcher,
		audioSrv:   audioSrv,
	}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: testUserID,
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "tunewave-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
