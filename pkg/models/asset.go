package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AssetStatus is the lifecycle state of a video asset. The zero value is
// invalid; assets are always created in StatusUploading.
type AssetStatus string

const (
	StatusUploading AssetStatus = "uploading"
	StatusRemoving  AssetStatus = "removing"
	StatusReady     AssetStatus = "ready"
)

// legalTransitions is the closed transition table. Progress reports move
// uploading→ready; deletion and supersession move uploading/ready→removing;
// a removing asset only leaves by row deletion.
var legalTransitions = map[AssetStatus][]AssetStatus{
	StatusUploading: {StatusReady, StatusRemoving},
	StatusReady:     {StatusRemoving},
	StatusRemoving:  {},
}

// CanTransition reports whether from→to is a legal lifecycle transition.
func (s AssetStatus) CanTransition(to AssetStatus) bool {
	for _, next := range legalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s AssetStatus) Valid() bool {
	switch s {
	case StatusUploading, StatusRemoving, StatusReady:
		return true
	}
	return false
}

// FileCounts records how many uploaded files belong to each artifact
// category: segment counts per quality tier, per audio track, and the
// number of thumbnail sprite sheets.
type FileCounts struct {
	Qualities  map[string]int `json:"qualities"`
	Audio      map[string]int `json:"audio"`
	Thumbnails int            `json:"thumbnails"`
}

// Total sums every category.
func (fc FileCounts) Total() int {
	total := fc.Thumbnails
	for _, n := range fc.Qualities {
		total += n
	}
	for _, n := range fc.Audio {
		total += n
	}
	return total
}

// Value implements driver.Valuer for database storage
func (fc FileCounts) Value() (driver.Value, error) {
	return json.Marshal(fc)
}

// Scan implements sql.Scanner for database retrieval
func (fc *FileCounts) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, fc)
}

// VideoAsset is one transcoded video occupying a slot on a movie record.
type VideoAsset struct {
	ID            string      `json:"id" db:"id"`
	MovieID       string      `json:"movie_id" db:"movie_id"`
	Slot          Slot        `json:"slot" db:"-"`
	Src           string      `json:"src" db:"src"`
	Thumbnail     string      `json:"thumbnail" db:"thumbnail"`
	Duration      float64     `json:"duration" db:"duration"`
	Qualities     []string    `json:"qualities" db:"qualities"`
	Audio         []string    `json:"audio" db:"audio"`
	Subtitles     []string    `json:"subtitles" db:"subtitles"`
	Files         FileCounts  `json:"files" db:"files"`
	Status        AssetStatus `json:"status" db:"status"`
	Uploaded      int         `json:"uploaded" db:"uploaded"`
	Total         int         `json:"total" db:"total"`
	ManagerUserID string      `json:"manager_user_id" db:"manager_user_id"`
	LastUpdateAt  time.Time   `json:"last_update_at" db:"last_update_at"`
}

// SlotKind addresses which position on a movie an asset occupies.
type SlotKind string

const (
	SlotTrailer SlotKind = "trailer"
	SlotFilm    SlotKind = "film"
	SlotEpisode SlotKind = "episode"
)

// Slot identifies at most one active asset position: the trailer, the
// single film, or a specific season+episode index.
type Slot struct {
	Kind    SlotKind `json:"kind"`
	Season  int      `json:"season,omitempty"`
	Episode int      `json:"episode,omitempty"`
}

// Key returns a stable identifier for lock and metric labels.
func (s Slot) Key(movieID string) string {
	if s.Kind == SlotEpisode {
		return fmt.Sprintf("%s:%s:%d:%d", movieID, s.Kind, s.Season, s.Episode)
	}
	return fmt.Sprintf("%s:%s", movieID, s.Kind)
}
