package rendition

import (
	"errors"
	"fmt"
)

// ErrQualityTooLow is returned when a source is smaller than the lowest
// tier in both dimensions, so no rendition can be produced.
var ErrQualityTooLow = errors.New("video quality too low")

// Tier is one target quality level of the adaptive-bitrate ladder.
type Tier struct {
	Name             string
	Width            int
	Height           int
	MaxBitrateKbps   int
	BufferSizeKb     int
	AudioBitrateKbps int
}

// Label returns the tier's public quality label, e.g. "720p".
func (t Tier) Label() string {
	return t.Name
}

// Catalog is the fixed ordered tier ladder, ascending. Planning walks it in
// order and never skips a tier.
var Catalog = []Tier{
	{Name: "360p", Width: 640, Height: 360, MaxBitrateKbps: 1000, BufferSizeKb: 2000, AudioBitrateKbps: 96},
	{Name: "480p", Width: 854, Height: 480, MaxBitrateKbps: 1500, BufferSizeKb: 3000, AudioBitrateKbps: 128},
	{Name: "720p", Width: 1280, Height: 720, MaxBitrateKbps: 3000, BufferSizeKb: 6000, AudioBitrateKbps: 128},
	{Name: "1080p", Width: 1920, Height: 1080, MaxBitrateKbps: 5500, BufferSizeKb: 11000, AudioBitrateKbps: 192},
	{Name: "1440p", Width: 2560, Height: 1440, MaxBitrateKbps: 9000, BufferSizeKb: 18000, AudioBitrateKbps: 192},
	{Name: "2160p", Width: 3840, Height: 2160, MaxBitrateKbps: 17000, BufferSizeKb: 34000, AudioBitrateKbps: 192},
}

// Plan selects the ordered prefix of the catalog a source can serve without
// upscaling. A tier is included only while both of its dimensions fit the
// source; the first violation stops the scan so no higher tier is
// considered, even one that would fit a single dimension.
func Plan(sourceWidth, sourceHeight int, catalog []Tier) ([]Tier, error) {
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return nil, fmt.Errorf("invalid source resolution %dx%d", sourceWidth, sourceHeight)
	}

	var plan []Tier
	for _, tier := range catalog {
		if tier.Width > sourceWidth || tier.Height > sourceHeight {
			break
		}
		plan = append(plan, tier)
	}

	if len(plan) == 0 {
		return nil, ErrQualityTooLow
	}

	return plan, nil
}

// Labels returns the quality labels of a plan, in order.
func Labels(plan []Tier) []string {
	labels := make([]string, 0, len(plan))
	for _, tier := range plan {
		labels = append(labels, tier.Label())
	}
	return labels
}
