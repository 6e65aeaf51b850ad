package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kinohall/vodpipe/pkg/models"
)

// ErrNotFound is returned when a movie or asset does not exist.
var ErrNotFound = errors.New("not found")

// Repository provides database operations. All asset mutations are atomic
// single-field updates (increment, guarded set, row delete) rather than
// whole-record read-modify-write, to keep concurrent progress reports and
// deletions from losing each other's writes.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Movies

// GetMovie retrieves a movie by ID
func (r *Repository) GetMovie(ctx context.Context, id string) (*models.Movie, error) {
	var movie models.Movie

	query := `
		SELECT id, title, category, created_at, updated_at
		FROM movies
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&movie.ID, &movie.Title, &movie.Category, &movie.CreatedAt, &movie.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("movie %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}

	return &movie, nil
}

// Assets

const assetColumns = `
	id, movie_id, slot_kind, season, episode, src, thumbnail, duration,
	qualities, audio, subtitles, files, status, uploaded, total,
	manager_user_id, last_update_at
`

func scanAsset(row pgx.Row) (*models.VideoAsset, error) {
	var asset models.VideoAsset

	err := row.Scan(
		&asset.ID, &asset.MovieID, &asset.Slot.Kind, &asset.Slot.Season, &asset.Slot.Episode,
		&asset.Src, &asset.Thumbnail, &asset.Duration,
		&asset.Qualities, &asset.Audio, &asset.Subtitles, &asset.Files,
		&asset.Status, &asset.Uploaded, &asset.Total,
		&asset.ManagerUserID, &asset.LastUpdateAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}

	return &asset, nil
}

// CreateAsset inserts a fresh asset row in its initial state.
func (r *Repository) CreateAsset(ctx context.Context, asset *models.VideoAsset) error {
	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}

	query := `
		INSERT INTO video_assets (
			id, movie_id, slot_kind, season, episode, src, thumbnail, duration,
			qualities, audio, subtitles, files, status, uploaded, total,
			manager_user_id, last_update_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now())
		RETURNING last_update_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		asset.ID, asset.MovieID, asset.Slot.Kind, asset.Slot.Season, asset.Slot.Episode,
		asset.Src, asset.Thumbnail, asset.Duration,
		asset.Qualities, asset.Audio, asset.Subtitles, asset.Files,
		asset.Status, asset.Uploaded, asset.Total, asset.ManagerUserID,
	).Scan(&asset.LastUpdateAt)

	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

// GetAsset retrieves an asset by ID, verifying it belongs to the movie.
func (r *Repository) GetAsset(ctx context.Context, movieID, assetID string) (*models.VideoAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM video_assets WHERE id = $1 AND movie_id = $2`
	return scanAsset(r.db.Pool.QueryRow(ctx, query, assetID, movieID))
}

// GetAssetBySlot retrieves whatever asset currently occupies a slot.
func (r *Repository) GetAssetBySlot(ctx context.Context, movieID string, slot models.Slot) (*models.VideoAsset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM video_assets
		WHERE movie_id = $1 AND slot_kind = $2 AND season = $3 AND episode = $4
	`
	return scanAsset(r.db.Pool.QueryRow(ctx, query, movieID, slot.Kind, slot.Season, slot.Episode))
}

// IncrementUploaded atomically bumps the progress counter of an asset that
// is still uploading and returns the fresh counter pair. The re-read
// happens in the same statement, so two near-simultaneous reports cannot
// both observe the pre-increment value.
func (r *Repository) IncrementUploaded(ctx context.Context, assetID string) (uploaded, total int, err error) {
	query := `
		UPDATE video_assets
		SET uploaded = uploaded + 1, last_update_at = now()
		WHERE id = $1 AND status = $2
		RETURNING uploaded, total
	`

	err = r.db.Pool.QueryRow(ctx, query, assetID, models.StatusUploading).Scan(&uploaded, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment uploaded: %w", err)
	}

	return uploaded, total, nil
}

// GetUploadedCount reads the current progress counter.
func (r *Repository) GetUploadedCount(ctx context.Context, assetID string) (uploaded int, status models.AssetStatus, err error) {
	query := `SELECT uploaded, status FROM video_assets WHERE id = $1`

	err = r.db.Pool.QueryRow(ctx, query, assetID).Scan(&uploaded, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", ErrNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to get uploaded count: %w", err)
	}

	return uploaded, status, nil
}

// FinalizeReady flips an uploading asset to ready, clamping the counter to
// total so a late duplicate report can never push it past the expected
// count.
func (r *Repository) FinalizeReady(ctx context.Context, assetID string) (bool, error) {
	query := `
		UPDATE video_assets
		SET status = $2, uploaded = LEAST(uploaded, total), last_update_at = now()
		WHERE id = $1 AND status = $3
	`

	tag, err := r.db.Pool.Exec(ctx, query, assetID, models.StatusReady, models.StatusUploading)
	if err != nil {
		return false, fmt.Errorf("failed to finalize asset: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// SetStatus performs a guarded status transition. It reports whether the
// row actually moved, so callers can tell a lost race from success.
func (r *Repository) SetStatus(ctx context.Context, assetID string, from, to models.AssetStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}

	query := `
		UPDATE video_assets
		SET status = $2, last_update_at = now()
		WHERE id = $1 AND status = $3
	`

	tag, err := r.db.Pool.Exec(ctx, query, assetID, to, from)
	if err != nil {
		return false, fmt.Errorf("failed to set status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// UpdateArtifacts records what the pipeline produced for an asset: storage
// paths, duration, achieved tiers, track names, file counts and the final
// expected total. The total is only written while the asset is still
// uploading: once the completion gate moved the row to ready (a client
// that declared its own count may finish before the pipeline does), the
// counter pair is settled and raising total would leave a ready asset
// with uploaded < total.
func (r *Repository) UpdateArtifacts(ctx context.Context, asset *models.VideoAsset) error {
	query := `
		UPDATE video_assets
		SET src = $2, thumbnail = $3, duration = $4, qualities = $5,
		    audio = $6, subtitles = $7, files = $8,
		    total = CASE WHEN status = $10 THEN $9 ELSE total END,
		    last_update_at = now()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		asset.ID, asset.Src, asset.Thumbnail, asset.Duration, asset.Qualities,
		asset.Audio, asset.Subtitles, asset.Files, asset.Total,
		models.StatusUploading,
	)
	if err != nil {
		return fmt.Errorf("failed to update artifacts: %w", err)
	}

	return nil
}

// DeleteAsset removes the asset row. Deleting an already-removed asset is
// a no-op.
func (r *Repository) DeleteAsset(ctx context.Context, assetID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM video_assets WHERE id = $1`, assetID)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	return nil
}

// Seasons

// EnsureSeason records that a season exists on a serial.
func (r *Repository) EnsureSeason(ctx context.Context, movieID string, season int) error {
	query := `
		INSERT INTO movie_seasons (movie_id, season_idx)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := r.db.Pool.Exec(ctx, query, movieID, season); err != nil {
		return fmt.Errorf("failed to ensure season: %w", err)
	}

	return nil
}

// PruneEmptySeasons drops seasons whose last episode asset is gone.
func (r *Repository) PruneEmptySeasons(ctx context.Context, movieID string) error {
	query := `
		DELETE FROM movie_seasons s
		WHERE s.movie_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM video_assets a
			WHERE a.movie_id = s.movie_id
			  AND a.slot_kind = $2
			  AND a.season = s.season_idx
		  )
	`

	if _, err := r.db.Pool.Exec(ctx, query, movieID, models.SlotEpisode); err != nil {
		return fmt.Errorf("failed to prune seasons: %w", err)
	}

	return nil
}
