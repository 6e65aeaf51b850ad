package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/kinohall/vodpipe/internal/rendition"
)

// Fixed encoding parameters for device compatibility: standard chroma
// subsampling, compatibility profile and level, fixed color primaries,
// fixed keyframe interval, scene-cut detection off.
const (
	videoCodec    = "libx264"
	audioCodec    = "aac"
	pixelFormat   = "yuv420p"
	h264Profile   = "main"
	h264Level     = "4.0"
	colorPrimary  = "bt709"
	keyframeGroup = 48
)

// Options holds one transcoding invocation.
type Options struct {
	InputPath   string
	OutputDir   string
	Plan        []rendition.Tier
	SegmentTime int
	HasAudio    bool
	Threads     int
}

// Variant is one produced rendition of the stream.
type Variant struct {
	Tier         rendition.Tier
	PlaylistFile string
}

// Result is what a finished transcode produced in the scratch directory.
// Segment counts are not inventoried here: the uploader drains (and
// deletes) scratch files while ffmpeg is still running, so only the drain
// itself knows the full file inventory.
type Result struct {
	MasterPlaylist string
	Variants       []Variant
}

// SegmentFilePattern matches the segment files of one quality label.
func SegmentFilePattern(label string) string {
	return "stream_" + label + "_"
}

// Job is an asynchronously running transcode. The channel returned by Done
// is closed once the result (and so the final file inventory) is known.
type Job struct {
	done   chan struct{}
	result *Result
	err    error
}

// Done signals completion; afterwards Result is safe to call.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the transcode outcome. Calling it before Done is closed
// races with the worker goroutine.
func (j *Job) Result() (*Result, error) {
	return j.result, j.err
}

// Transcoder converts a source into segmented adaptive-bitrate output.
type Transcoder struct {
	ffmpegPath string
}

// New creates a transcoder using the given ffmpeg binary.
func New(ffmpegPath string) *Transcoder {
	return &Transcoder{ffmpegPath: ffmpegPath}
}

// ThreadBudget reserves two cores for the rest of the process when the
// machine has more than three, and falls back to a single thread otherwise.
func ThreadBudget(cores int) int {
	if cores > 3 {
		return cores - 2
	}
	return 1
}

// Start launches the transcode in the background and returns immediately.
// A failure surfaces through the job, never by crashing sibling work.
func (t *Transcoder) Start(ctx context.Context, opts Options) *Job {
	job := &Job{done: make(chan struct{})}

	go func() {
		defer close(job.done)
		job.result, job.err = t.run(ctx, opts)
	}()

	return job
}

func (t *Transcoder) run(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.Plan) == 0 {
		return nil, fmt.Errorf("no renditions planned")
	}
	if opts.SegmentTime <= 0 {
		opts.SegmentTime = 6
	}
	if opts.Threads <= 0 {
		opts.Threads = ThreadBudget(runtime.NumCPU())
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	args := t.buildArgs(opts)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg HLS generation failed: %w, stderr: %s", err, stderr.String())
	}

	result := &Result{
		MasterPlaylist: filepath.Join(opts.OutputDir, "master.m3u8"),
	}
	for _, tier := range opts.Plan {
		result.Variants = append(result.Variants, Variant{
			Tier:         tier,
			PlaylistFile: filepath.Join(opts.OutputDir, fmt.Sprintf("stream_%s.m3u8", tier.Label())),
		})
	}

	return result, nil
}

// buildArgs assembles the multi-variant ffmpeg command line.
func (t *Transcoder) buildArgs(opts Options) []string {
	args := []string{
		"-i", opts.InputPath,
		"-y",
		"-threads", fmt.Sprintf("%d", opts.Threads),
	}

	for i, tier := range opts.Plan {
		args = append(args, "-map", "0:v:0")
		if opts.HasAudio {
			args = append(args, "-map", "0:a:0")
		}

		args = append(args,
			fmt.Sprintf("-c:v:%d", i), videoCodec,
			fmt.Sprintf("-filter:v:%d", i), fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", tier.Width, tier.Height),
			fmt.Sprintf("-maxrate:v:%d", i), fmt.Sprintf("%dk", tier.MaxBitrateKbps),
			fmt.Sprintf("-bufsize:v:%d", i), fmt.Sprintf("%dk", tier.BufferSizeKb),
			fmt.Sprintf("-profile:v:%d", i), h264Profile,
			fmt.Sprintf("-level:v:%d", i), h264Level,
		)

		if opts.HasAudio {
			args = append(args,
				fmt.Sprintf("-c:a:%d", i), audioCodec,
				fmt.Sprintf("-b:a:%d", i), fmt.Sprintf("%dk", tier.AudioBitrateKbps),
			)
		}
	}

	args = append(args,
		"-pix_fmt", pixelFormat,
		"-color_primaries", colorPrimary,
		"-color_trc", colorPrimary,
		"-colorspace", colorPrimary,
		"-g", fmt.Sprintf("%d", keyframeGroup),
		"-keyint_min", fmt.Sprintf("%d", keyframeGroup),
		"-sc_threshold", "0",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", opts.SegmentTime),
		"-hls_playlist_type", "vod",
		"-hls_allow_cache", "1",
		"-hls_flags", "independent_segments+temp_file",
		"-hls_segment_type", "mpegts",
	)

	var varStreamMap []string
	for i, tier := range opts.Plan {
		if opts.HasAudio {
			varStreamMap = append(varStreamMap, fmt.Sprintf("v:%d,a:%d,name:%s", i, i, tier.Label()))
		} else {
			varStreamMap = append(varStreamMap, fmt.Sprintf("v:%d,name:%s", i, tier.Label()))
		}
	}

	args = append(args,
		"-var_stream_map", strings.Join(varStreamMap, " "),
		"-master_pl_name", "master.m3u8",
		"-hls_segment_filename", filepath.Join(opts.OutputDir, "stream_%v_%03d.ts"),
		filepath.Join(opts.OutputDir, "stream_%v.m3u8"),
	)

	return args
}
