package asset

import (
	"context"
	"errors"
	"time"

	"github.com/kinohall/vodpipe/internal/database"
	"github.com/kinohall/vodpipe/pkg/models"
)

// User-facing rejections. Handlers map these to terse, categorized
// responses instead of leaking internals.
var (
	ErrNotFound         = database.ErrNotFound
	ErrAlreadyUploading = errors.New("already uploading")
	ErrAlreadyRemoving  = errors.New("already being removed")
	ErrCategoryChanged  = errors.New("category changed")
)

// Repository is the persistence surface the lifecycle tracker needs.
// *database.Repository implements it.
type Repository interface {
	GetMovie(ctx context.Context, id string) (*models.Movie, error)
	CreateAsset(ctx context.Context, asset *models.VideoAsset) error
	GetAsset(ctx context.Context, movieID, assetID string) (*models.VideoAsset, error)
	GetAssetBySlot(ctx context.Context, movieID string, slot models.Slot) (*models.VideoAsset, error)
	IncrementUploaded(ctx context.Context, assetID string) (uploaded, total int, err error)
	GetUploadedCount(ctx context.Context, assetID string) (uploaded int, status models.AssetStatus, err error)
	FinalizeReady(ctx context.Context, assetID string) (bool, error)
	SetStatus(ctx context.Context, assetID string, from, to models.AssetStatus) (bool, error)
	UpdateArtifacts(ctx context.Context, asset *models.VideoAsset) error
	DeleteAsset(ctx context.Context, assetID string) error
	EnsureSeason(ctx context.Context, movieID string, season int) error
	PruneEmptySeasons(ctx context.Context, movieID string) error
	EnqueueDeletion(ctx context.Context, kind, key string) error
	DueDeletions(ctx context.Context, limit, maxAttempts int) ([]database.PendingDeletion, error)
	MarkDeletionAttempt(ctx context.Context, id int64, backoff time.Duration) error
	RemoveDeletion(ctx context.Context, id int64) error
}

// Purger is the slice of object storage the tracker purges through.
type Purger interface {
	DeleteFolder(ctx context.Context, prefix string) error
	DeleteObject(ctx context.Context, key string) error
}

// Locker guards a slot against concurrent staging across processes.
type Locker interface {
	AcquireSlotLock(ctx context.Context, slotKey string, ttl time.Duration) (bool, error)
	ReleaseSlotLock(ctx context.Context, slotKey string) error
}

// EventSink receives lifecycle transition events.
type EventSink interface {
	Publish(ctx context.Context, event models.AssetEvent) error
}

// ProgressCache mirrors the hot counters for polling collaborators.
type ProgressCache interface {
	SetProgress(ctx context.Context, assetID string, status models.AssetStatus, uploaded, total int, ttl time.Duration) error
	GetProgress(ctx context.Context, assetID string) (status models.AssetStatus, uploaded, total int, ok bool, err error)
	DropProgress(ctx context.Context, assetID string) error
}

// slotAllowed checks the slot kind against the page's current category. A
// film slot on a serial page (or the reverse) means the slot data is stale
// relative to the page type, and every mutation must refuse it.
func slotAllowed(category models.Category, kind models.SlotKind) bool {
	switch kind {
	case models.SlotTrailer:
		return true
	case models.SlotFilm:
		return category == models.CategoryFilm
	case models.SlotEpisode:
		return category == models.CategorySerial
	}
	return false
}
