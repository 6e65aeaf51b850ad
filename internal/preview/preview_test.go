package preview

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIntervalFor(t *testing.T) {
	tests := []struct {
		duration float64
		want     float64
	}{
		{100, 2},
		{119.9, 2},
		{120, 3},
		{200, 3},
		{300, 4},
		{500, 5},
		{1000, 10},
		{2000, 20},
		{5000, 30},
		{10000, 60},
		{50000, 120},
		{60000, 180},
	}

	for _, tt := range tests {
		if got := IntervalFor(tt.duration); got != tt.want {
			t.Errorf("IntervalFor(%v) = %v, want %v", tt.duration, got, tt.want)
		}
	}
}

func TestPreviewOffsetRange(t *testing.T) {
	g := New("ffmpeg")

	const duration = 100.0
	for i := 0; i < 1000; i++ {
		offset := g.PreviewOffset(duration)
		if offset < duration/3 || offset >= duration/3+duration/10 {
			t.Fatalf("PreviewOffset(%v) = %v, want in [%v, %v)", duration, offset, duration/3, duration/3+duration/10)
		}
	}
}

func TestCuesCoverDuration(t *testing.T) {
	durations := []float64{100, 119, 120, 599, 3599.5, 7300, 90000}

	for _, d := range durations {
		interval := IntervalFor(d)
		cues := Cues(d, interval)

		if len(cues) == 0 {
			t.Fatalf("no cues for duration %v", d)
		}

		if cues[0].Start != 0 {
			t.Errorf("duration %v: first cue starts at %v, want 0", d, cues[0].Start)
		}

		for i := 1; i < len(cues); i++ {
			if cues[i].Start != cues[i-1].End {
				t.Errorf("duration %v: gap or overlap between cue %d end %v and cue %d start %v",
					d, i-1, cues[i-1].End, i, cues[i].Start)
			}
		}

		last := cues[len(cues)-1]
		if last.End < d {
			t.Errorf("duration %v: last cue ends at %v, before the duration", d, last.End)
		}
	}
}

func TestCuesSheetLayout(t *testing.T) {
	// 100s at 2s interval: 50 samples across two sheets.
	cues := Cues(100, 2)
	if len(cues) != 50 {
		t.Fatalf("expected 50 cues, got %d", len(cues))
	}

	// Sample 0: sheet 1, top-left.
	if cues[0].File != "thumbs_1.jpg" || cues[0].X != 0 || cues[0].Y != 0 {
		t.Errorf("cue 0 = %+v, want thumbs_1.jpg at 0,0", cues[0])
	}

	// Sample 7: sheet 1, column 2 row 1.
	if cues[7].X != 2*160 || cues[7].Y != 1*90 {
		t.Errorf("cue 7 position = %d,%d, want %d,%d", cues[7].X, cues[7].Y, 2*160, 90)
	}

	// Sample 24: sheet 1, bottom-right.
	if cues[24].File != "thumbs_1.jpg" || cues[24].X != 4*160 || cues[24].Y != 4*90 {
		t.Errorf("cue 24 = %+v, want thumbs_1.jpg bottom-right", cues[24])
	}

	// Sample 25 rolls onto sheet 2, top-left.
	if cues[25].File != "thumbs_2.jpg" || cues[25].X != 0 || cues[25].Y != 0 {
		t.Errorf("cue 25 = %+v, want thumbs_2.jpg at 0,0", cues[25])
	}
}

func TestSheetCount(t *testing.T) {
	tests := []struct {
		samples int
		want    int
	}{
		{1, 1},
		{25, 1},
		{26, 2},
		{50, 2},
		{51, 3},
		{180, 8},
	}

	for _, tt := range tests {
		if got := SheetCount(tt.samples); got != tt.want {
			t.Errorf("SheetCount(%d) = %d, want %d", tt.samples, got, tt.want)
		}
	}
}

func TestSampleCountShortVideo(t *testing.T) {
	// Under 120s the interval is 2s: a 100s video yields 50 samples, and
	// nothing shorter than one interval yields fewer than one sample.
	if got := SampleCount(100, 2); got != 50 {
		t.Errorf("SampleCount(100, 2) = %d, want 50", got)
	}
	if got := SampleCount(1, 2); got != 1 {
		t.Errorf("SampleCount(1, 2) = %d, want 1", got)
	}
}

func TestWriteCueSheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thumbnails.vtt")

	if err := WriteCueSheet(path, 100, 2); err != nil {
		t.Fatalf("WriteCueSheet() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	content := string(data)
	if !strings.HasPrefix(content, "WEBVTT\n") {
		t.Error("cue sheet missing WEBVTT header")
	}
	if !strings.Contains(content, "00:00:00.000 --> 00:00:02.000") {
		t.Error("cue sheet missing first cue range")
	}
	if !strings.Contains(content, "thumbs_1.jpg#xywh=0,0,160,90") {
		t.Error("cue sheet missing first crop reference")
	}
	if !strings.Contains(content, "00:01:38.000 --> 00:01:40.000") {
		t.Error("cue sheet missing final cue range")
	}
}

func TestFormatCueTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00.000"},
		{2, "00:00:02.000"},
		{63.5, "00:01:03.500"},
		{3723.25, "01:02:03.250"},
	}

	for _, tt := range tests {
		if got := formatCueTime(tt.seconds); got != tt.want {
			t.Errorf("formatCueTime(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
