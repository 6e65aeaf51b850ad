package transcoder

import (
	"context"
	"strings"
	"testing"

	"github.com/kinohall/vodpipe/internal/rendition"
)

func TestThreadBudget(t *testing.T) {
	tests := []struct {
		cores int
		want  int
	}{
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{8, 6},
		{16, 14},
	}

	for _, tt := range tests {
		if got := ThreadBudget(tt.cores); got != tt.want {
			t.Errorf("ThreadBudget(%d) = %d, want %d", tt.cores, got, tt.want)
		}
	}
}

func TestBuildArgs(t *testing.T) {
	tr := New("ffmpeg")

	plan, err := rendition.Plan(1280, 720, rendition.Catalog)
	if err != nil {
		t.Fatal(err)
	}

	opts := Options{
		InputPath:   "/scratch/source.mp4",
		OutputDir:   "/scratch/out",
		Plan:        plan,
		SegmentTime: 6,
		HasAudio:    true,
		Threads:     4,
	}

	joined := strings.Join(tr.buildArgs(opts), " ")

	for _, want := range []string{
		"-threads 4",
		"-pix_fmt yuv420p",
		"-sc_threshold 0",
		"-g 48",
		"-hls_playlist_type vod",
		"-hls_allow_cache 1",
		"-hls_time 6",
		"-maxrate:v:2 3000k",
		"-bufsize:v:2 6000k",
		"-b:a:1 128k",
		"-var_stream_map v:0,a:0,name:360p v:1,a:1,name:480p v:2,a:2,name:720p",
		"-master_pl_name master.m3u8",
		"scale=1280:720:force_original_aspect_ratio=decrease",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("buildArgs missing %q in:\n%s", want, joined)
		}
	}
}

func TestBuildArgsNoAudio(t *testing.T) {
	tr := New("ffmpeg")

	plan, err := rendition.Plan(640, 360, rendition.Catalog)
	if err != nil {
		t.Fatal(err)
	}

	opts := Options{
		InputPath:   "/scratch/source.mp4",
		OutputDir:   "/scratch/out",
		Plan:        plan,
		SegmentTime: 6,
		HasAudio:    false,
		Threads:     1,
	}

	joined := strings.Join(tr.buildArgs(opts), " ")

	if strings.Contains(joined, "-c:a:") {
		t.Error("audio codec set for silent source")
	}
	if strings.Contains(joined, "0:a:0") {
		t.Error("audio stream mapped for silent source")
	}
	if !strings.Contains(joined, "-var_stream_map v:0,name:360p") {
		t.Errorf("unexpected var_stream_map in:\n%s", joined)
	}
}

func TestStartSurfacesFailure(t *testing.T) {
	tr := New("/nonexistent/ffmpeg")

	plan, err := rendition.Plan(1280, 720, rendition.Catalog)
	if err != nil {
		t.Fatal(err)
	}

	job := tr.Start(context.Background(), Options{
		InputPath: "/nonexistent/in.mp4",
		OutputDir: t.TempDir(),
		Plan:      plan,
	})

	<-job.Done()

	if _, err := job.Result(); err == nil {
		t.Error("expected error from missing ffmpeg binary")
	}
}

func TestSegmentFilePattern(t *testing.T) {
	if got := SegmentFilePattern("720p"); got != "stream_720p_" {
		t.Errorf("SegmentFilePattern(720p) = %q", got)
	}
}
