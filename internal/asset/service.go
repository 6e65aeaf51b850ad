package asset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kinohall/vodpipe/internal/config"
	"github.com/kinohall/vodpipe/internal/database"
	"github.com/kinohall/vodpipe/internal/metrics"
	"github.com/kinohall/vodpipe/internal/scheduler"
	"github.com/kinohall/vodpipe/pkg/models"
)

const (
	outboxBatchSize = 50
	outboxBackoff   = 5 * time.Minute
	progressTTL     = 24 * time.Hour
)

// Service owns the asset lifecycle: slot claiming, the upload-completion
// gate, stall collection and explicit removal. All storage purging funnels
// through the deletion outbox so a flaky object store never wedges a
// state transition.
type Service struct {
	repo   Repository
	purger Purger
	locks  Locker
	events EventSink
	cache  ProgressCache
	sched  *scheduler.Scheduler
	cfg    config.AssetConfig
}

func NewService(repo Repository, purger Purger, locks Locker, events EventSink, cache ProgressCache, sched *scheduler.Scheduler, cfg config.AssetConfig) *Service {
	return &Service{
		repo:   repo,
		purger: purger,
		locks:  locks,
		events: events,
		cache:  cache,
		sched:  sched,
		cfg:    cfg,
	}
}

// Begin claims a slot on a movie and creates its asset record in UPLOADING.
// An existing READY occupant is superseded: it is torn down and its storage
// queued for purge before the new record is created. An occupant still in
// flight blocks the claim unless the requester is the one who started it,
// in which case the stale attempt is replaced.
func (s *Service) Begin(ctx context.Context, movieID string, slot models.Slot, managerUserID string, declaredTotal int) (*models.VideoAsset, error) {
	movie, err := s.repo.GetMovie(ctx, movieID)
	if err != nil {
		return nil, err
	}
	if !slotAllowed(movie.Category, slot.Kind) {
		metrics.IngestsRejectedTotal.WithLabelValues("category").Inc()
		return nil, ErrCategoryChanged
	}

	slotKey := slot.Key(movieID)
	locked, err := s.locks.AcquireSlotLock(ctx, slotKey, s.cfg.SlotLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to lock slot %s: %w", slotKey, err)
	}
	if !locked {
		metrics.IngestsRejectedTotal.WithLabelValues("slot_busy").Inc()
		return nil, ErrAlreadyUploading
	}
	defer func() {
		if err := s.locks.ReleaseSlotLock(ctx, slotKey); err != nil {
			log.Warn().Err(err).Str("slot", slotKey).Msg("failed to release slot lock")
		}
	}()

	existing, err := s.repo.GetAssetBySlot(ctx, movieID, slot)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if err := s.evictOccupant(ctx, existing, managerUserID); err != nil {
			return nil, err
		}
	}

	asset := &models.VideoAsset{
		ID:            uuid.New().String(),
		MovieID:       movieID,
		Slot:          slot,
		Status:        models.StatusUploading,
		Total:         declaredTotal,
		ManagerUserID: managerUserID,
	}
	if err := s.repo.CreateAsset(ctx, asset); err != nil {
		return nil, err
	}
	if slot.Kind == models.SlotEpisode {
		if err := s.repo.EnsureSeason(ctx, movieID, slot.Season); err != nil {
			return nil, err
		}
	}

	metrics.IngestsStartedTotal.WithLabelValues(string(slot.Kind)).Inc()
	s.publish(ctx, models.EventAssetCreated, asset)
	log.Info().
		Str("asset_id", asset.ID).
		Str("movie_id", movieID).
		Str("slot", slotKey).
		Msg("asset upload started")

	return asset, nil
}

// evictOccupant clears the way for a new claim on an occupied slot.
func (s *Service) evictOccupant(ctx context.Context, existing *models.VideoAsset, managerUserID string) error {
	switch existing.Status {
	case models.StatusReady:
		// Supersession of a finished asset is always allowed.
	case models.StatusUploading:
		if existing.ManagerUserID != managerUserID {
			metrics.IngestsRejectedTotal.WithLabelValues("slot_busy").Inc()
			return ErrAlreadyUploading
		}
		// The original uploader may abandon their own stale attempt.
	case models.StatusRemoving:
		metrics.IngestsRejectedTotal.WithLabelValues("slot_busy").Inc()
		return ErrAlreadyRemoving
	}

	if _, err := s.repo.SetStatus(ctx, existing.ID, existing.Status, models.StatusRemoving); err != nil {
		return err
	}
	existing.Status = models.StatusRemoving
	s.publish(ctx, models.EventAssetRemoving, existing)
	return s.teardown(ctx, existing)
}

// ReportProgress advances the upload-completion gate for one finished file.
// The increment and re-read happen in a single statement, so two concurrent
// reports can never read the same counter value. The asset flips to READY
// exactly once, when the counter reaches the expected total.
func (s *Service) ReportProgress(ctx context.Context, movieID, assetID string) (*models.VideoAsset, error) {
	asset, err := s.repo.GetAsset(ctx, movieID, assetID)
	if err != nil {
		return nil, err
	}
	movie, err := s.repo.GetMovie(ctx, movieID)
	if err != nil {
		return nil, err
	}
	if !slotAllowed(movie.Category, asset.Slot.Kind) {
		return nil, ErrCategoryChanged
	}

	switch asset.Status {
	case models.StatusRemoving:
		return nil, ErrAlreadyRemoving
	case models.StatusReady:
		// Late duplicate after completion. The counter is already clamped
		// to total, so repeating the report is harmless.
		return asset, nil
	}

	uploaded, total, err := s.repo.IncrementUploaded(ctx, assetID)
	if errors.Is(err, database.ErrNotFound) {
		// Lost the race against removal or completion. Re-read to decide.
		return s.repo.GetAsset(ctx, movieID, assetID)
	}
	if err != nil {
		return nil, err
	}
	asset.Uploaded = uploaded
	asset.Total = total

	if total > 0 && uploaded >= total {
		return s.finalize(ctx, asset)
	}

	if err := s.cache.SetProgress(ctx, assetID, models.StatusUploading, uploaded, total, progressTTL); err != nil {
		log.Warn().Err(err).Str("asset_id", assetID).Msg("failed to cache progress")
	}
	s.publish(ctx, models.EventAssetProgressed, asset)
	s.armStallCheck(movieID, assetID, uploaded)

	return asset, nil
}

// Refresh re-evaluates the completion gate from the stored counters. The
// pipeline calls this after it fixes the expected total, covering reports
// that landed while the total was still unknown.
func (s *Service) Refresh(ctx context.Context, movieID, assetID string) (*models.VideoAsset, error) {
	asset, err := s.repo.GetAsset(ctx, movieID, assetID)
	if err != nil {
		return nil, err
	}
	if asset.Status == models.StatusUploading && asset.Total > 0 && asset.Uploaded >= asset.Total {
		return s.finalize(ctx, asset)
	}
	return asset, nil
}

// finalize moves an asset to READY. The guarded update makes the transition
// single-shot under concurrent reports: only the caller that flipped the row
// emits the ready event. A caller that lost the race re-reads the row, since
// the winner may have been a removal rather than another report.
func (s *Service) finalize(ctx context.Context, asset *models.VideoAsset) (*models.VideoAsset, error) {
	moved, err := s.repo.FinalizeReady(ctx, asset.ID)
	if err != nil {
		return nil, err
	}
	if !moved {
		return s.repo.GetAsset(ctx, asset.MovieID, asset.ID)
	}
	asset.Status = models.StatusReady
	if asset.Total > 0 {
		asset.Uploaded = asset.Total
	}

	s.sched.Cancel(scheduler.StallCheckJob(asset.ID))
	if err := s.cache.SetProgress(ctx, asset.ID, models.StatusReady, asset.Uploaded, asset.Total, progressTTL); err != nil {
		log.Warn().Err(err).Str("asset_id", asset.ID).Msg("failed to cache progress")
	}
	metrics.AssetsReadyTotal.Inc()
	s.publish(ctx, models.EventAssetReady, asset)
	log.Info().
		Str("asset_id", asset.ID).
		Str("movie_id", asset.MovieID).
		Int("files", asset.Total).
		Msg("asset ready")

	return asset, nil
}

// armStallCheck schedules a single recheck of the asset's counter one stall
// window out. Each report replaces the pending check, so the timer only
// fires after a full window of silence.
func (s *Service) armStallCheck(movieID, assetID string, observed int) {
	s.sched.ScheduleOnce(scheduler.StallCheckJob(assetID), s.cfg.StallWindow, func(ctx context.Context) {
		s.recheckStall(ctx, movieID, assetID, observed)
	})
}

// recheckStall decides whether an UPLOADING asset is abandoned. If the
// counter moved since the check was armed, the upload is alive and the
// check re-arms against the fresh value. A frozen counter after a full
// window means the uploader is gone, and the asset is collected.
func (s *Service) recheckStall(ctx context.Context, movieID, assetID string, observed int) {
	uploaded, status, err := s.repo.GetUploadedCount(ctx, assetID)
	if errors.Is(err, database.ErrNotFound) {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("asset_id", assetID).Msg("stall recheck failed, retrying")
		s.armStallCheck(movieID, assetID, observed)
		return
	}
	if status != models.StatusUploading {
		return
	}
	if uploaded > observed {
		s.armStallCheck(movieID, assetID, uploaded)
		return
	}

	asset, err := s.repo.GetAsset(ctx, movieID, assetID)
	if err != nil {
		log.Error().Err(err).Str("asset_id", assetID).Msg("failed to load stalled asset")
		return
	}
	moved, err := s.repo.SetStatus(ctx, assetID, models.StatusUploading, models.StatusRemoving)
	if err != nil || !moved {
		return
	}
	asset.Status = models.StatusRemoving
	s.publish(ctx, models.EventAssetRemoving, asset)

	if err := s.teardown(ctx, asset); err != nil {
		log.Error().Err(err).Str("asset_id", assetID).Msg("failed to collect stalled asset")
		return
	}
	metrics.StalledAssetsCollected.Inc()
	log.Warn().
		Str("asset_id", assetID).
		Str("movie_id", movieID).
		Int("uploaded", uploaded).
		Msg("stalled asset collected")
}

// Delete removes a finished asset on explicit request. In-flight assets are
// refused: an upload must either complete or stall out before its slot can
// be cleared this way.
func (s *Service) Delete(ctx context.Context, movieID, assetID string) error {
	asset, err := s.repo.GetAsset(ctx, movieID, assetID)
	if err != nil {
		return err
	}
	movie, err := s.repo.GetMovie(ctx, movieID)
	if err != nil {
		return err
	}
	if !slotAllowed(movie.Category, asset.Slot.Kind) {
		return ErrCategoryChanged
	}

	switch asset.Status {
	case models.StatusUploading:
		return ErrAlreadyUploading
	case models.StatusRemoving:
		return ErrAlreadyRemoving
	}

	moved, err := s.repo.SetStatus(ctx, assetID, models.StatusReady, models.StatusRemoving)
	if err != nil {
		return err
	}
	if !moved {
		return ErrAlreadyRemoving
	}
	asset.Status = models.StatusRemoving
	s.publish(ctx, models.EventAssetRemoving, asset)

	if err := s.teardown(ctx, asset); err != nil {
		return err
	}
	log.Info().
		Str("asset_id", assetID).
		Str("movie_id", movieID).
		Msg("asset deleted")
	return nil
}

// FailIngest records that an asset's transcode died after starting. The
// record deliberately stays in UPLOADING: a transient encoder failure must
// not destroy a record the client might retry against, so collection is
// left to the stall recheck, re-armed here against the current counter in
// case no further report ever arrives.
func (s *Service) FailIngest(ctx context.Context, movieID, assetID string) {
	uploaded, status, err := s.repo.GetUploadedCount(ctx, assetID)
	if err != nil {
		log.Error().Err(err).Str("asset_id", assetID).Msg("failed to read counters after transcode failure")
		return
	}
	if status != models.StatusUploading {
		return
	}

	metrics.TranscodeFailuresTotal.Inc()
	s.armStallCheck(movieID, assetID, uploaded)
	log.Error().
		Str("asset_id", assetID).
		Str("movie_id", movieID).
		Msg("transcode failed, leaving asset for stall collection")
}

// Abort tears down an UPLOADING asset whose ingest failed before producing
// anything durable. Unlike Delete it acts on in-flight assets; it is not
// reachable from the outside.
func (s *Service) Abort(ctx context.Context, movieID, assetID string) error {
	asset, err := s.repo.GetAsset(ctx, movieID, assetID)
	if err != nil {
		return err
	}
	moved, err := s.repo.SetStatus(ctx, assetID, models.StatusUploading, models.StatusRemoving)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	asset.Status = models.StatusRemoving
	s.publish(ctx, models.EventAssetRemoving, asset)
	return s.teardown(ctx, asset)
}

// teardown purges an asset's storage and then drops its record. Purging
// runs first; anything the store refuses to delete right now lands in the
// outbox and is retried until it is gone.
func (s *Service) teardown(ctx context.Context, asset *models.VideoAsset) error {
	s.sched.Cancel(scheduler.StallCheckJob(asset.ID))

	if asset.Src != "" {
		if err := s.purger.DeleteFolder(ctx, asset.Src); err != nil {
			log.Warn().Err(err).Str("prefix", asset.Src).Msg("deferring folder purge to outbox")
			if err := s.repo.EnqueueDeletion(ctx, database.DeletionFolder, asset.Src); err != nil {
				return err
			}
		}
	}
	if asset.Thumbnail != "" {
		if err := s.purger.DeleteObject(ctx, asset.Thumbnail); err != nil {
			log.Warn().Err(err).Str("key", asset.Thumbnail).Msg("deferring object purge to outbox")
			if err := s.repo.EnqueueDeletion(ctx, database.DeletionObject, asset.Thumbnail); err != nil {
				return err
			}
		}
	}

	if err := s.repo.DeleteAsset(ctx, asset.ID); err != nil {
		return err
	}
	if asset.Slot.Kind == models.SlotEpisode {
		if err := s.repo.PruneEmptySeasons(ctx, asset.MovieID); err != nil {
			log.Warn().Err(err).Str("movie_id", asset.MovieID).Msg("failed to prune empty seasons")
		}
	}
	if err := s.cache.DropProgress(ctx, asset.ID); err != nil {
		log.Warn().Err(err).Str("asset_id", asset.ID).Msg("failed to drop cached progress")
	}
	s.publish(ctx, models.EventAssetRemoved, asset)
	return nil
}

// DrainOutbox retries pending storage deletions. Called on a fixed interval
// by the scheduler; each entry is retried with backoff until it succeeds or
// exhausts its attempts.
func (s *Service) DrainOutbox(ctx context.Context) {
	pending, err := s.repo.DueDeletions(ctx, outboxBatchSize, s.cfg.OutboxMaxAttempt)
	if err != nil {
		log.Error().Err(err).Msg("failed to read deletion outbox")
		return
	}

	for _, entry := range pending {
		var purgeErr error
		switch entry.Kind {
		case database.DeletionFolder:
			purgeErr = s.purger.DeleteFolder(ctx, entry.Key)
		case database.DeletionObject:
			purgeErr = s.purger.DeleteObject(ctx, entry.Key)
		default:
			log.Error().Str("kind", entry.Kind).Int64("id", entry.ID).Msg("unknown outbox entry kind, dropping")
			purgeErr = nil
		}

		if purgeErr != nil {
			metrics.StoragePurgesTotal.WithLabelValues(entry.Kind, "failed").Inc()
			log.Warn().Err(purgeErr).Str("key", entry.Key).Int("attempts", entry.Attempts+1).Msg("storage purge failed")
			if err := s.repo.MarkDeletionAttempt(ctx, entry.ID, outboxBackoff); err != nil {
				log.Error().Err(err).Int64("id", entry.ID).Msg("failed to record purge attempt")
			}
			continue
		}

		metrics.StoragePurgesTotal.WithLabelValues(entry.Kind, "ok").Inc()
		if err := s.repo.RemoveDeletion(ctx, entry.ID); err != nil {
			log.Error().Err(err).Int64("id", entry.ID).Msg("failed to remove completed outbox entry")
		}
	}
}

// SetArtifacts persists the pipeline's computed artifact metadata and then
// re-runs the completion gate, since fixing the total may complete the
// asset retroactively.
func (s *Service) SetArtifacts(ctx context.Context, asset *models.VideoAsset) (*models.VideoAsset, error) {
	if err := s.repo.UpdateArtifacts(ctx, asset); err != nil {
		return nil, err
	}
	return s.Refresh(ctx, asset.MovieID, asset.ID)
}

// Progress reports the current state of an asset. While an upload is in
// flight the counters come from the cache, keeping the poll loops of
// waiting clients off the database; any other state (or a cache miss)
// reads the full record.
func (s *Service) Progress(ctx context.Context, movieID, assetID string) (*models.VideoAsset, error) {
	status, uploaded, total, ok, err := s.cache.GetProgress(ctx, assetID)
	if err != nil {
		log.Warn().Err(err).Str("asset_id", assetID).Msg("failed to read cached progress")
	}
	if ok && status == models.StatusUploading {
		return &models.VideoAsset{
			ID:       assetID,
			MovieID:  movieID,
			Status:   status,
			Uploaded: uploaded,
			Total:    total,
		}, nil
	}
	return s.repo.GetAsset(ctx, movieID, assetID)
}

func (s *Service) publish(ctx context.Context, typ models.AssetEventType, asset *models.VideoAsset) {
	if s.events == nil {
		return
	}
	event := models.AssetEvent{
		Type:       typ,
		AssetID:    asset.ID,
		MovieID:    asset.MovieID,
		Slot:       asset.Slot,
		Status:     asset.Status,
		Uploaded:   asset.Uploaded,
		Total:      asset.Total,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("asset_id", asset.ID).Str("type", string(typ)).Msg("failed to publish asset event")
	}
}
