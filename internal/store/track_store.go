package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tunewave/api/internal/model"
)

// ErrNotFound is returned when no row matches the requested identifier.
var ErrNotFound = errors.New("track not found")

// TrackStore is the record-store surface the pipeline depends on. An
// explicit interface keeps the orchestrator testable with in-memory fakes
// instead of an ambient database handle.
type TrackStore interface {
	// UpsertTrack writes one track row keyed by external track ID,
	// replacing any previous delivery of the same track.
	UpsertTrack(ctx context.Context, t *model.Track) error
	// GetTrack returns one row by ID, or ErrNotFound.
	GetTrack(ctx context.Context, id string) (*model.Track, error)
	// CreatePlaceholder records a pending job at dispatch time, keyed by
	// task ID. Re-dispatching the same task is a no-op.
	CreatePlaceholder(ctx context.Context, taskID, userID, title string) error
	// ResolvePlaceholder removes the pending row once real tracks landed.
	ResolvePlaceholder(ctx context.Context, taskID string) error
	// FailPlaceholder marks the pending row failed when no track survived.
	FailPlaceholder(ctx context.Context, taskID string) error
	// ListByUser returns a user's tracks, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Track, error)
	Ping(ctx context.Context) error
}

// PostgresTrackStore implements TrackStore using pgx/v5.
type PostgresTrackStore struct {
	pool *pgxpool.Pool
}

func NewPostgresTrackStore(pool *pgxpool.Pool) *PostgresTrackStore {
	return &PostgresTrackStore{pool: pool}
}

func (s *PostgresTrackStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresTrackStore) UpsertTrack(ctx context.Context, t *model.Track) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracks (id, user_id, task_id, title, public_url, model_name, duration, style, instrumental, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   task_id = EXCLUDED.task_id,
		   title = EXCLUDED.title,
		   public_url = EXCLUDED.public_url,
		   model_name = EXCLUDED.model_name,
		   duration = EXCLUDED.duration,
		   style = EXCLUDED.style,
		   instrumental = EXCLUDED.instrumental,
		   status = EXCLUDED.status`,
		t.ID, t.UserID, t.TaskID, t.Title, nullable(t.PublicURL), nullable(t.ModelName),
		t.Duration, nullable(t.Style), t.Instrumental, string(t.Status), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert track: %w", err)
	}
	return nil
}

func (s *PostgresTrackStore) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	var t model.Track
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, task_id, title, COALESCE(public_url, ''), COALESCE(model_name, ''),
		        duration, COALESCE(style, ''), instrumental, status, created_at
		 FROM tracks WHERE id = $1`, id).
		Scan(&t.ID, &t.UserID, &t.TaskID, &t.Title, &t.PublicURL, &t.ModelName,
			&t.Duration, &t.Style, &t.Instrumental, &status, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	t.Status = model.TrackStatus(status)
	return &t, nil
}

func (s *PostgresTrackStore) CreatePlaceholder(ctx context.Context, taskID, userID, title string) error {
	if title == "" {
		title = "Untitled"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracks (id, user_id, task_id, title, instrumental, status, created_at)
		 VALUES ($1, $2, $1, $3, FALSE, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		taskID, userID, title, string(model.TrackStatusProcessing), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create placeholder: %w", err)
	}
	return nil
}

func (s *PostgresTrackStore) ResolvePlaceholder(ctx context.Context, taskID string) error {
	// Only the placeholder carries its task ID as row ID; real tracks are
	// keyed by track ID, so this never touches persisted results.
	_, err := s.pool.Exec(ctx,
		`DELETE FROM tracks WHERE id = $1 AND status = $2`,
		taskID, string(model.TrackStatusProcessing))
	if err != nil {
		return fmt.Errorf("resolve placeholder: %w", err)
	}
	return nil
}

func (s *PostgresTrackStore) FailPlaceholder(ctx context.Context, taskID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tracks SET status = $2 WHERE id = $1 AND status = $3`,
		taskID, string(model.TrackStatusFailed), string(model.TrackStatusProcessing))
	if err != nil {
		return fmt.Errorf("fail placeholder: %w", err)
	}
	return nil
}

func (s *PostgresTrackStore) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Track, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, task_id, title, COALESCE(public_url, ''), COALESCE(model_name, ''),
		        duration, COALESCE(style, ''), instrumental, status, created_at
		 FROM tracks WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		var t model.Track
		var status string
		if err := rows.Scan(&t.ID, &t.UserID, &t.TaskID, &t.Title, &t.PublicURL, &t.ModelName,
			&t.Duration, &t.Style, &t.Instrumental, &status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		t.Status = model.TrackStatus(status)
		tracks = append(tracks, &t)
	}
	return tracks, rows.Err()
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
