package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"OctaMuse/logger"
	"OctaMuse/model"

	"github.com/google/uuid"
)

// TrackRepository defines the interface for generated-track catalog operations.
// Every owner-scoped query filters by user ID as a second predicate, even when
// selecting by primary key, so guessed identifiers cannot cross tenants.
type TrackRepository interface {
	// ExistsByProviderJob is the dedup guard: it must be consulted before any
	// insert for the same provider result.
	ExistsByProviderJob(ctx context.Context, providerJobID string, userID int64) (bool, error)
	// Save catalogs a track and returns its id. Saving a track whose
	// (userID, providerJobID) pair already exists is an idempotent no-op that
	// returns the existing row's id.
	Save(ctx context.Context, track *model.GeneratedTrack) (string, error)
	GetByID(ctx context.Context, userID int64, trackID string) (*model.GeneratedTrack, error)
	GetByProviderJob(ctx context.Context, providerJobID string, userID int64) (*model.GeneratedTrack, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.GeneratedTrack, error)
	Delete(ctx context.Context, userID int64, trackID string) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	db *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{db: db}
}

const trackColumns = `id, user_id, title, prompt, genre, audio_url, cover_url, provider_job_id, duration, created_at`

// ExistsByProviderJob reports whether a track for the given provider result is
// already cataloged for the user.
func (r *mysqlTrackRepository) ExistsByProviderJob(ctx context.Context, providerJobID string, userID int64) (bool, error) {
	query := `SELECT COUNT(*) FROM generated_tracks WHERE provider_job_id = ? AND user_id = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, providerJobID, userID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check track existence for provider job %s: %w", providerJobID, err)
	}
	return count > 0, nil
}

// Save adds a new track to the catalog, assigning its id at save time.
func (r *mysqlTrackRepository) Save(ctx context.Context, track *model.GeneratedTrack) (string, error) {
	// Re-check the dedup guard at call time: the recovery path can race a late
	// provider callback, and the duplicate must succeed silently.
	existing, err := r.GetByProviderJob(ctx, track.ProviderJobID, track.UserID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		logger.Debug("[Catalog] 重复的生成结果，跳过写入",
			logger.String("providerJobId", track.ProviderJobID),
			logger.Int64("userId", track.UserID),
			logger.String("trackId", existing.ID))
		return existing.ID, nil
	}

	if track.Duration <= 0 {
		track.Duration = model.DefaultTrackDuration
	}

	query := `INSERT INTO generated_tracks (id, user_id, title, prompt, genre, audio_url, cover_url, provider_job_id, duration, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement for Save: %w", err)
	}
	defer stmt.Close()

	id := uuid.NewString()
	now := time.Now()
	_, err = stmt.ExecContext(ctx, id, track.UserID, track.Title, track.Prompt, track.Genre,
		track.AudioURL, track.CoverURL, track.ProviderJobID, track.Duration, now)
	if err != nil {
		return "", fmt.Errorf("failed to execute Save: %w", err)
	}

	track.ID = id
	track.CreatedAt = now
	logger.Info("[Catalog] Track created",
		logger.String("trackId", id),
		logger.String("title", track.Title),
		logger.Int64("userId", track.UserID))
	return id, nil
}

// GetByID retrieves a track by its id, scoped to the owner.
func (r *mysqlTrackRepository) GetByID(ctx context.Context, userID int64, trackID string) (*model.GeneratedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM generated_tracks WHERE id = ? AND user_id = ?`
	row := r.db.QueryRowContext(ctx, query, trackID, userID)
	return scanTrack(row)
}

// GetByProviderJob retrieves a track by the provider job that produced it.
func (r *mysqlTrackRepository) GetByProviderJob(ctx context.Context, providerJobID string, userID int64) (*model.GeneratedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM generated_tracks WHERE provider_job_id = ? AND user_id = ?`
	row := r.db.QueryRowContext(ctx, query, providerJobID, userID)
	return scanTrack(row)
}

// ListByUser retrieves all of a user's tracks, newest first.
func (r *mysqlTrackRepository) ListByUser(ctx context.Context, userID int64) ([]*model.GeneratedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM generated_tracks WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	tracks := make([]*model.GeneratedTrack, 0)
	for rows.Next() {
		track := &model.GeneratedTrack{}
		err := rows.Scan(&track.ID, &track.UserID, &track.Title, &track.Prompt, &track.Genre,
			&track.AudioURL, &track.CoverURL, &track.ProviderJobID, &track.Duration, &track.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in ListByUser: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListByUser: %w", err)
	}

	return tracks, nil
}

// Delete removes a track, scoped to the owner.
func (r *mysqlTrackRepository) Delete(ctx context.Context, userID int64, trackID string) error {
	query := `DELETE FROM generated_tracks WHERE id = ? AND user_id = ?`
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for Delete: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, trackID, userID)
	if err != nil {
		return fmt.Errorf("failed to execute Delete for track ID %s: %w", trackID, err)
	}
	return nil
}

func scanTrack(row *sql.Row) (*model.GeneratedTrack, error) {
	track := &model.GeneratedTrack{}
	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.Prompt, &track.Genre,
		&track.AudioURL, &track.CoverURL, &track.ProviderJobID, &track.Duration, &track.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track row: %w", err)
	}
	return track, nil
}
