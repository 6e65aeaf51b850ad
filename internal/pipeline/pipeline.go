package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kinohall/vodpipe/internal/config"
	"github.com/kinohall/vodpipe/internal/metrics"
	"github.com/kinohall/vodpipe/internal/preview"
	"github.com/kinohall/vodpipe/internal/probe"
	"github.com/kinohall/vodpipe/internal/rendition"
	"github.com/kinohall/vodpipe/internal/tracing"
	"github.com/kinohall/vodpipe/internal/transcoder"
	"github.com/kinohall/vodpipe/pkg/models"
)

// Uploader is the slice of object storage the pipeline drains into.
type Uploader interface {
	UploadDirectory(ctx context.Context, localDir, remotePrefix string) ([]string, error)
}

// Artifacts is everything one finished ingest produced: where it lives in
// object storage and the per-category file inventory the completion gate
// is measured against.
type Artifacts struct {
	Src        string
	Thumbnail  string
	Duration   float64
	Qualities  []string
	Audio      []string
	Files      models.FileCounts
	TotalFiles int
}

// Hooks connect an ingest run to the asset lifecycle. OnFileUploaded fires
// once per distinct uploaded file; OnComplete fires exactly once when the
// async stage finishes, with either the final artifacts or the error that
// ended the run.
type Hooks struct {
	OnFileUploaded func(ctx context.Context, name string)
	OnComplete     func(ctx context.Context, artifacts *Artifacts, err error)
}

// Service runs the ingest pipeline: probe, rendition planning, preview
// generation, transcoding and the drain loop that ships scratch files to
// object storage while ffmpeg is still producing them.
type Service struct {
	prober *probe.Prober
	gen    *preview.Generator
	trans  *transcoder.Transcoder
	store  Uploader
	cfg    config.PipelineConfig
}

func New(store Uploader, cfg config.PipelineConfig) *Service {
	return &Service{
		prober: probe.New(cfg.FFprobePath),
		gen:    preview.New(cfg.FFmpegPath),
		trans:  transcoder.New(cfg.FFmpegPath),
		store:  store,
		cfg:    cfg,
	}
}

// StagePath returns where an incoming source file is staged. The staged
// source lives next to, not inside, the asset's scratch directory so the
// drain never ships it to storage.
func (s *Service) StagePath(assetID string) string {
	return filepath.Join(s.cfg.ScratchDir, assetID+".source")
}

// Ingest validates and launches processing of a staged source file. The
// synchronous part probes the source, plans the rendition ladder and
// generates and uploads the preview artifacts; a rejected source is
// deleted and the error returned to the caller. Everything after that
// runs asynchronously and reports through hooks.
func (s *Service) Ingest(ctx context.Context, assetID, sourcePath string, hooks Hooks) error {
	span, ctx := tracing.StartSpan(ctx, "pipeline.ingest")
	defer span.Finish()
	span.SetTag("asset_id", assetID)

	info, err := s.prober.Probe(ctx, sourcePath)
	if err != nil {
		tracing.LogError(span, err)
		metrics.IngestsRejectedTotal.WithLabelValues("unreadable").Inc()
		s.discard(sourcePath)
		return err
	}

	plan, err := rendition.Plan(info.Width, info.Height, rendition.Catalog)
	if err != nil {
		tracing.LogError(span, err)
		metrics.IngestsRejectedTotal.WithLabelValues("quality_too_low").Inc()
		s.discard(sourcePath)
		return err
	}

	scratchDir := filepath.Join(s.cfg.ScratchDir, assetID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		s.discard(sourcePath)
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}

	run := &ingestRun{
		svc:        s,
		assetID:    assetID,
		sourcePath: sourcePath,
		scratchDir: scratchDir,
		prefix:     "videos/" + assetID,
		info:       info,
		plan:       plan,
		hooks:      hooks,
		seen:       make(map[string]bool),
	}

	if _, err := s.gen.Generate(ctx, sourcePath, scratchDir, info.Duration); err != nil {
		tracing.LogError(span, err)
		run.cleanup()
		return fmt.Errorf("failed to generate preview artifacts: %w", err)
	}
	if err := run.drain(ctx); err != nil {
		tracing.LogError(span, err)
		run.cleanup()
		return fmt.Errorf("failed to upload preview artifacts: %w", err)
	}

	// The request context dies with the HTTP response; the transcode and
	// its drain loop must not.
	bgCtx := context.WithoutCancel(ctx)

	job := s.trans.Start(bgCtx, transcoder.Options{
		InputPath:   sourcePath,
		OutputDir:   scratchDir,
		Plan:        plan,
		SegmentTime: s.cfg.SegmentTime,
		HasAudio:    info.HasAudio(),
		Threads:     transcoder.ThreadBudget(runtime.NumCPU()),
	})

	metrics.TranscodesInProgress.Inc()
	go run.watch(bgCtx, job)

	log.Info().
		Str("asset_id", assetID).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("duration", info.Duration).
		Strs("qualities", rendition.Labels(plan)).
		Msg("transcode started")

	return nil
}

func (s *Service) discard(sourcePath string) {
	if err := os.Remove(sourcePath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", sourcePath).Msg("failed to remove staged source")
	}
}

// ingestRun is the mutable state of one ingest: the drain inventory plus
// everything needed to assemble the final artifacts.
type ingestRun struct {
	svc        *Service
	assetID    string
	sourcePath string
	scratchDir string
	prefix     string
	info       *models.SourceProbe
	plan       []rendition.Tier
	hooks      Hooks
	seen       map[string]bool
}

// drain ships every file currently in the scratch directory to storage.
// ffmpeg rewrites variant playlists as segments are appended, so a playlist
// may be uploaded several times; the inventory and the progress hook only
// count the first sighting of each name.
func (r *ingestRun) drain(ctx context.Context) error {
	names, err := r.svc.store.UploadDirectory(ctx, r.scratchDir, r.prefix)
	metrics.ArtifactsUploadedTotal.Add(float64(len(names)))
	for _, name := range names {
		if r.seen[name] {
			continue
		}
		r.seen[name] = true
		if r.hooks.OnFileUploaded != nil {
			r.hooks.OnFileUploaded(ctx, name)
		}
	}
	return err
}

// watch follows the async transcode: it drains the scratch directory on a
// fixed tick until the job finishes, runs one final drain to catch the
// tail, then tears down scratch state and reports completion.
func (r *ingestRun) watch(ctx context.Context, job *transcoder.Job) {
	started := time.Now()
	defer metrics.TranscodesInProgress.Dec()

	tick := r.svc.cfg.DrainTick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for running := true; running; {
		select {
		case <-job.Done():
			running = false
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				log.Warn().Err(err).Str("asset_id", r.assetID).Msg("drain pass failed, will retry")
			}
		}
	}

	_, err := job.Result()
	if err == nil {
		// The final drain must succeed: files it misses would be lost
		// when scratch is torn down.
		err = r.drain(ctx)
	}
	r.cleanup()
	metrics.TranscodeDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		log.Error().Err(err).Str("asset_id", r.assetID).Msg("transcode failed")
		if r.hooks.OnComplete != nil {
			r.hooks.OnComplete(ctx, nil, err)
		}
		return
	}

	artifacts := r.assemble()
	log.Info().
		Str("asset_id", r.assetID).
		Int("files", artifacts.TotalFiles).
		Dur("elapsed", time.Since(started)).
		Msg("transcode finished")
	if r.hooks.OnComplete != nil {
		r.hooks.OnComplete(ctx, artifacts, nil)
	}
}

// assemble builds the artifact record from the drain inventory.
func (r *ingestRun) assemble() *Artifacts {
	names := make([]string, 0, len(r.seen))
	for name := range r.seen {
		names = append(names, name)
	}
	sort.Strings(names)

	var audio []string
	if r.info.HasAudio() {
		audio = []string{"original"}
	}

	return &Artifacts{
		Src:        r.prefix,
		Thumbnail:  r.prefix + "/preview.jpg",
		Duration:   r.info.Duration,
		Qualities:  rendition.Labels(r.plan),
		Audio:      audio,
		Files:      countFiles(names, r.plan),
		TotalFiles: len(names),
	}
}

func (r *ingestRun) cleanup() {
	if err := os.RemoveAll(r.scratchDir); err != nil {
		log.Warn().Err(err).Str("path", r.scratchDir).Msg("failed to remove scratch dir")
	}
	r.svc.discard(r.sourcePath)
}

// countFiles inventories uploaded file names into per-category counts:
// media segments per quality and the number of sprite sheets.
func countFiles(names []string, plan []rendition.Tier) models.FileCounts {
	counts := models.FileCounts{
		Qualities: make(map[string]int),
		Audio:     make(map[string]int),
	}
	for _, tier := range plan {
		counts.Qualities[tier.Label()] = 0
	}

	for _, name := range names {
		base := filepath.Base(name)
		if strings.HasPrefix(base, "thumbs_") && strings.HasSuffix(base, ".jpg") {
			counts.Thumbnails++
			continue
		}
		if !strings.HasSuffix(base, ".ts") {
			continue
		}
		for _, tier := range plan {
			if strings.HasPrefix(base, transcoder.SegmentFilePattern(tier.Label())) {
				counts.Qualities[tier.Label()]++
				break
			}
		}
	}
	return counts
}
