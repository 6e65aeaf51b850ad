package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kinohall/vodpipe/pkg/models"
)

// Error wraps a source-inspection failure so callers can distinguish a bad
// upload from the rest of the pipeline.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Prober extracts source metadata with ffprobe.
type Prober struct {
	ffprobePath string
}

// New creates a prober using the given ffprobe binary.
func New(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Channels  int    `json:"channels"`
}

// Probe inspects a locally staged source file. It is read-only: no files
// are written or modified.
func (p *Prober) Probe(ctx context.Context, inputPath string) (*models.SourceProbe, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-sexagesimal",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &Error{Path: inputPath, Err: fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())}
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, &Error{Path: inputPath, Err: fmt.Errorf("failed to parse ffprobe output: %w", err)}
	}

	duration, err := ParseTimestamp(out.Format.Duration)
	if err != nil {
		return nil, &Error{Path: inputPath, Err: fmt.Errorf("bad duration %q: %w", out.Format.Duration, err)}
	}

	result := &models.SourceProbe{Duration: duration}

	hasVideo := false
	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "video":
			if !hasVideo {
				result.Width = stream.Width
				result.Height = stream.Height
				hasVideo = true
			}
		case "audio":
			if stream.Channels > result.AudioChannels {
				result.AudioChannels = stream.Channels
			}
		}
	}

	if !hasVideo {
		return nil, &Error{Path: inputPath, Err: fmt.Errorf("no video stream")}
	}

	return result, nil
}

// ParseTimestamp converts an HH:MM:SS[.fraction] timestamp to seconds. A
// bare decimal number of seconds is accepted as well, since ffprobe emits
// that form when sexagesimal output is off.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	parts := strings.Split(ts, ":")
	switch len(parts) {
	case 1:
		return strconv.ParseFloat(parts[0], 64)
	case 3:
		hours, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, fmt.Errorf("bad hours %q", parts[0])
		}
		minutes, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, fmt.Errorf("bad minutes %q", parts[1])
		}
		seconds, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, fmt.Errorf("bad seconds %q", parts[2])
		}
		return hours*3600 + minutes*60 + seconds, nil
	default:
		return 0, fmt.Errorf("unexpected timestamp format %q", ts)
	}
}
