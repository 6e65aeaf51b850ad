package models

import "time"

// Category distinguishes a single-film page from a serial with seasons.
// Asset slots are only meaningful relative to the current category: a film
// slot on a serial page (or vice versa) is stale data.
type Category string

const (
	CategoryFilm   Category = "film"
	CategorySerial Category = "serial"
)

// Movie is the parent record an asset is attributed to. Only the fields the
// pipeline touches are modelled here; catalog metadata lives with the
// collaborating services.
type Movie struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Category  Category  `json:"category" db:"category"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SourceProbe is the read-only result of inspecting an uploaded source
// file. Computed once per upload, never persisted past the transcoding job.
type SourceProbe struct {
	Duration      float64 `json:"duration"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	AudioChannels int     `json:"audio_channels"`
}

// HasAudio reports whether the source carries at least one audio channel.
func (p SourceProbe) HasAudio() bool {
	return p.AudioChannels > 0
}
