package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinohall/vodpipe/internal/config"
	"github.com/kinohall/vodpipe/internal/rendition"
	"github.com/kinohall/vodpipe/pkg/models"
)

type fakeUploader struct {
	batches [][]string
	calls   int
}

func (u *fakeUploader) UploadDirectory(_ context.Context, _, _ string) ([]string, error) {
	if u.calls >= len(u.batches) {
		return nil, nil
	}
	batch := u.batches[u.calls]
	u.calls++
	return batch, nil
}

func testPlan(t *testing.T) []rendition.Tier {
	t.Helper()
	plan, err := rendition.Plan(1280, 720, rendition.Catalog)
	require.NoError(t, err)
	return plan
}

func TestCountFiles(t *testing.T) {
	plan := testPlan(t)

	names := []string{
		"preview.jpg",
		"thumbnails.vtt",
		"thumbs_1.jpg",
		"thumbs_2.jpg",
		"master.m3u8",
		"stream_360p.m3u8",
		"stream_360p_000.ts",
		"stream_360p_001.ts",
		"stream_480p.m3u8",
		"stream_480p_000.ts",
		"stream_720p.m3u8",
		"stream_720p_000.ts",
		"stream_720p_001.ts",
		"stream_720p_002.ts",
	}

	counts := countFiles(names, plan)
	assert.Equal(t, 2, counts.Qualities["360p"])
	assert.Equal(t, 1, counts.Qualities["480p"])
	assert.Equal(t, 3, counts.Qualities["720p"])
	assert.Equal(t, 2, counts.Thumbnails)
	assert.Empty(t, counts.Audio)
}

func TestCountFilesIgnoresPlaylistsAndForeignNames(t *testing.T) {
	plan := testPlan(t)

	counts := countFiles([]string{
		"master.m3u8",
		"stream_720p.m3u8",
		"stream_1080p_000.ts", // not in the plan
		"notes.txt",
	}, plan)

	assert.Equal(t, 0, counts.Qualities["720p"])
	assert.Equal(t, 0, counts.Thumbnails)
	_, planned := counts.Qualities["1080p"]
	assert.False(t, planned)
}

func TestDrainReportsEachFileOnce(t *testing.T) {
	store := &fakeUploader{batches: [][]string{
		{"preview.jpg", "stream_360p_000.ts", "stream_360p.m3u8"},
		// The playlist is rewritten and re-uploaded on the next pass.
		{"stream_360p.m3u8", "stream_360p_001.ts"},
	}}

	var reported []string
	run := &ingestRun{
		svc:    &Service{store: store, cfg: config.PipelineConfig{}},
		prefix: "videos/a1",
		seen:   make(map[string]bool),
		hooks: Hooks{OnFileUploaded: func(_ context.Context, name string) {
			reported = append(reported, name)
		}},
	}

	require.NoError(t, run.drain(context.Background()))
	require.NoError(t, run.drain(context.Background()))

	assert.Equal(t, []string{
		"preview.jpg",
		"stream_360p_000.ts",
		"stream_360p.m3u8",
		"stream_360p_001.ts",
	}, reported)
	assert.Len(t, run.seen, 4)
}

func TestAssembleArtifacts(t *testing.T) {
	run := &ingestRun{
		assetID: "a1",
		prefix:  "videos/a1",
		info:    &models.SourceProbe{Duration: 600, Width: 1280, Height: 720, AudioChannels: 2},
		plan:    testPlan(t),
		seen: map[string]bool{
			"preview.jpg":        true,
			"thumbnails.vtt":     true,
			"thumbs_1.jpg":       true,
			"master.m3u8":        true,
			"stream_360p.m3u8":   true,
			"stream_360p_000.ts": true,
			"stream_480p.m3u8":   true,
			"stream_480p_000.ts": true,
			"stream_720p.m3u8":   true,
			"stream_720p_000.ts": true,
		},
	}

	artifacts := run.assemble()
	assert.Equal(t, "videos/a1", artifacts.Src)
	assert.Equal(t, "videos/a1/preview.jpg", artifacts.Thumbnail)
	assert.Equal(t, float64(600), artifacts.Duration)
	assert.Equal(t, []string{"360p", "480p", "720p"}, artifacts.Qualities)
	assert.Equal(t, []string{"original"}, artifacts.Audio)
	assert.Equal(t, 10, artifacts.TotalFiles)
	assert.Equal(t, 1, artifacts.Files.Qualities["360p"])
	assert.Equal(t, 1, artifacts.Files.Thumbnails)
}

func TestAssembleSilentSource(t *testing.T) {
	run := &ingestRun{
		prefix: "videos/a2",
		info:   &models.SourceProbe{Duration: 60, Width: 640, Height: 360},
		plan:   nil,
		seen:   map[string]bool{"preview.jpg": true},
	}

	artifacts := run.assemble()
	assert.Nil(t, artifacts.Audio)
}

func TestStagePath(t *testing.T) {
	s := New(&fakeUploader{}, config.PipelineConfig{ScratchDir: "/tmp/scratch"})
	assert.Equal(t, "/tmp/scratch/a1.source", s.StagePath("a1"))
}
