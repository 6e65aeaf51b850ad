package preview

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	previewWidth  = 640
	previewHeight = 360

	tileWidth     = 160
	tileHeight    = 90
	gridSize      = 5
	tilesPerSheet = gridSize * gridSize
)

// Generator derives the preview frame and the scrubbing sprite sheets from
// a staged source file.
type Generator struct {
	ffmpegPath string
	rng        *rand.Rand
}

// New creates a generator using the given ffmpeg binary.
func New(ffmpegPath string) *Generator {
	return &Generator{
		ffmpegPath: ffmpegPath,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Result describes the generated artifacts, all under the scratch
// directory passed to Generate.
type Result struct {
	PreviewFile string
	CueFile     string
	SheetCount  int
}

// Generate produces the preview still, the sprite sheets and the cue sheet.
// Any failure is fatal to the upload; there is no partial retry.
func (g *Generator) Generate(ctx context.Context, inputPath, outputDir string, duration float64) (*Result, error) {
	previewFile, err := g.generatePreview(ctx, inputPath, outputDir, duration)
	if err != nil {
		return nil, err
	}

	interval := IntervalFor(duration)
	samples := SampleCount(duration, interval)
	sheets := SheetCount(samples)

	if err := g.generateSprites(ctx, inputPath, outputDir, interval); err != nil {
		return nil, err
	}

	cueFile := filepath.Join(outputDir, "thumbnails.vtt")
	if err := WriteCueSheet(cueFile, duration, interval); err != nil {
		return nil, err
	}

	return &Result{
		PreviewFile: previewFile,
		CueFile:     cueFile,
		SheetCount:  sheets,
	}, nil
}

// PreviewOffset picks the pseudo-random timestamp the preview frame is
// taken at, uniform in [duration/3, duration/3 + duration/10).
func (g *Generator) PreviewOffset(duration float64) float64 {
	return duration/3 + g.rng.Float64()*duration/10
}

func (g *Generator) generatePreview(ctx context.Context, inputPath, outputDir string, duration float64) (string, error) {
	outputPath := filepath.Join(outputDir, "preview.jpg")
	offset := g.PreviewOffset(duration)

	args := []string{
		"-ss", fmt.Sprintf("%.2f", offset),
		"-i", inputPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", previewWidth, previewHeight),
		"-q:v", "2",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, g.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to extract preview frame: %w, stderr: %s", err, stderr.String())
	}

	return outputPath, nil
}

// generateSprites samples one frame per interval, scales each to the tile
// size and packs them 5x5 into sequentially numbered sheets.
func (g *Generator) generateSprites(ctx context.Context, inputPath, outputDir string, interval float64) error {
	pattern := filepath.Join(outputDir, "thumbs_%d.jpg")

	args := []string{
		"-i", inputPath,
		"-vf", fmt.Sprintf("fps=1/%g,scale=%d:%d,tile=%dx%d", interval, tileWidth, tileHeight, gridSize, gridSize),
		"-start_number", "1",
		"-q:v", "2",
		"-y",
		pattern,
	}

	cmd := exec.CommandContext(ctx, g.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to generate sprite sheets: %w, stderr: %s", err, stderr.String())
	}

	return nil
}

// IntervalFor maps a source duration to the sprite sampling interval,
// both in seconds.
func IntervalFor(duration float64) float64 {
	switch {
	case duration < 120:
		return 2
	case duration < 240:
		return 3
	case duration < 480:
		return 4
	case duration < 600:
		return 5
	case duration < 1800:
		return 10
	case duration < 3600:
		return 20
	case duration < 7200:
		return 30
	case duration < 14400:
		return 60
	case duration < 57600:
		return 120
	default:
		return 180
	}
}

// SampleCount returns how many sprite samples cover a duration: a cue spans
// one interval and the cues must cover [0, duration] without gaps.
func SampleCount(duration, interval float64) int {
	n := int(math.Ceil(duration / interval))
	if n < 1 {
		n = 1
	}
	return n
}

// SheetCount returns how many 25-tile sheets hold the given sample count.
func SheetCount(samples int) int {
	return (samples + tilesPerSheet - 1) / tilesPerSheet
}
