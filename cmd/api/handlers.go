package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kinohall/vodpipe/internal/asset"
	"github.com/kinohall/vodpipe/internal/middleware"
	"github.com/kinohall/vodpipe/internal/pipeline"
	"github.com/kinohall/vodpipe/internal/rendition"
	"github.com/kinohall/vodpipe/pkg/models"
)

func (api *API) uploadTrailer(c *gin.Context) {
	api.upload(c, models.Slot{Kind: models.SlotTrailer})
}

func (api *API) uploadFilm(c *gin.Context) {
	api.upload(c, models.Slot{Kind: models.SlotFilm})
}

func (api *API) uploadEpisode(c *gin.Context) {
	season, err := strconv.Atoi(c.Param("season"))
	if err != nil || season < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid season number"})
		return
	}
	episode, err := strconv.Atoi(c.Param("episode"))
	if err != nil || episode < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid episode number"})
		return
	}
	api.upload(c, models.Slot{Kind: models.SlotEpisode, Season: season, Episode: episode})
}

// upload claims the slot, stages the incoming file and launches the ingest
// pipeline. The response returns as soon as the source is validated; the
// transcode and artifact uploads continue in the background and drive the
// asset's progress counters from there.
func (api *API) upload(c *gin.Context, slot models.Slot) {
	movieID := c.Param("movieId")
	managerID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no video file provided"})
		return
	}
	if max := api.cfg.Server.MaxUploadBytes; max > 0 && file.Size > max {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	// Clients performing their own artifact uploads declare the expected
	// file count up front; pipeline-driven ingests leave it at zero and
	// the count is fixed once the transcode plan is known.
	declaredTotal := 0
	if raw := c.PostForm("total_files"); raw != "" {
		declaredTotal, err = strconv.Atoi(raw)
		if err != nil || declaredTotal < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid total_files"})
			return
		}
	}

	ctx := c.Request.Context()
	created, err := api.assets.Begin(ctx, movieID, slot, managerID, declaredTotal)
	if err != nil {
		respondError(c, err)
		return
	}

	stagePath := api.pipe.StagePath(created.ID)
	if err := c.SaveUploadedFile(file, stagePath); err != nil {
		_ = api.assets.Abort(ctx, movieID, created.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage file"})
		return
	}

	err = api.pipe.Ingest(ctx, created.ID, stagePath, pipeline.Hooks{
		OnFileUploaded: func(ctx context.Context, name string) {
			if _, err := api.assets.ReportProgress(ctx, movieID, created.ID); err != nil {
				log.Warn().Err(err).Str("asset_id", created.ID).Str("file", name).Msg("progress report failed")
			}
		},
		OnComplete: func(ctx context.Context, artifacts *pipeline.Artifacts, err error) {
			api.completeIngest(ctx, movieID, created, artifacts, err)
		},
	})
	if err != nil {
		_ = api.assets.Abort(ctx, movieID, created.ID)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, created)
}

// completeIngest lands the pipeline outcome on the asset record. A failed
// transcode leaves the record in place for stall collection rather than
// tearing it down here.
func (api *API) completeIngest(ctx context.Context, movieID string, created *models.VideoAsset, artifacts *pipeline.Artifacts, err error) {
	if err != nil {
		api.assets.FailIngest(ctx, movieID, created.ID)
		return
	}

	record := *created
	record.Src = artifacts.Src
	record.Thumbnail = artifacts.Thumbnail
	record.Duration = artifacts.Duration
	record.Qualities = artifacts.Qualities
	record.Audio = artifacts.Audio
	record.Files = artifacts.Files
	record.Total = artifacts.TotalFiles

	if _, err := api.assets.SetArtifacts(ctx, &record); err != nil {
		log.Error().Err(err).Str("asset_id", created.ID).Msg("failed to persist artifacts")
	}
}

func (api *API) reportProgress(c *gin.Context) {
	updated, err := api.assets.ReportProgress(c.Request.Context(), c.Param("movieId"), c.Param("assetId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   updated.Status,
		"uploaded": updated.Uploaded,
		"total":    updated.Total,
	})
}

func (api *API) getAsset(c *gin.Context) {
	found, err := api.assets.Progress(c.Request.Context(), c.Param("movieId"), c.Param("assetId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (api *API) deleteAsset(c *gin.Context) {
	err := api.assets.Delete(c.Request.Context(), c.Param("movieId"), c.Param("assetId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondError maps service errors onto terse HTTP responses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, asset.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, asset.ErrAlreadyUploading):
		c.JSON(http.StatusConflict, gin.H{"error": asset.ErrAlreadyUploading.Error()})
	case errors.Is(err, asset.ErrAlreadyRemoving):
		c.JSON(http.StatusConflict, gin.H{"error": asset.ErrAlreadyRemoving.Error()})
	case errors.Is(err, asset.ErrCategoryChanged):
		c.JSON(http.StatusConflict, gin.H{"error": asset.ErrCategoryChanged.Error()})
	case errors.Is(err, rendition.ErrQualityTooLow):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rendition.ErrQualityTooLow.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
