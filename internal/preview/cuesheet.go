package preview

import (
	"fmt"
	"math"
	"os"
	"strings"
)

// Cue maps one time range to a crop inside a sprite sheet.
type Cue struct {
	Start  float64
	End    float64
	File   string
	X      int
	Y      int
	Width  int
	Height int
}

// Cues lays out the timed-text cues for a duration sampled at interval.
// Sample i lives on sheet i/25; within a sheet the column is index%5 and
// the row is index/5. The last cue's end is never before the duration.
func Cues(duration, interval float64) []Cue {
	samples := SampleCount(duration, interval)
	cues := make([]Cue, 0, samples)

	for i := 0; i < samples; i++ {
		sheet := i/tilesPerSheet + 1
		idx := i % tilesPerSheet

		cues = append(cues, Cue{
			Start:  float64(i) * interval,
			End:    float64(i+1) * interval,
			File:   fmt.Sprintf("thumbs_%d.jpg", sheet),
			X:      (idx % gridSize) * tileWidth,
			Y:      (idx / gridSize) * tileHeight,
			Width:  tileWidth,
			Height: tileHeight,
		})
	}

	return cues
}

// WriteCueSheet writes the WebVTT cue sheet for a duration and interval.
func WriteCueSheet(path string, duration, interval float64) error {
	var content strings.Builder

	content.WriteString("WEBVTT\n\n")

	for _, cue := range Cues(duration, interval) {
		content.WriteString(formatCueTime(cue.Start))
		content.WriteString(" --> ")
		content.WriteString(formatCueTime(cue.End))
		content.WriteString("\n")
		content.WriteString(fmt.Sprintf("%s#xywh=%d,%d,%d,%d\n\n", cue.File, cue.X, cue.Y, cue.Width, cue.Height))
	}

	if err := os.WriteFile(path, []byte(content.String()), 0644); err != nil {
		return fmt.Errorf("failed to write cue sheet: %w", err)
	}

	return nil
}

// formatCueTime renders seconds as HH:MM:SS.mmm.
func formatCueTime(seconds float64) string {
	millis := int(math.Round(seconds * 1000))
	h := millis / 3600000
	m := millis % 3600000 / 60000
	s := millis % 60000 / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
