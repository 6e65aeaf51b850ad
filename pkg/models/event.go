package models

import "time"

// AssetEventType names a lifecycle transition published to collaborators.
type AssetEventType string

const (
	EventAssetCreated    AssetEventType = "asset.created"
	EventAssetProgressed AssetEventType = "asset.progressed"
	EventAssetReady      AssetEventType = "asset.ready"
	EventAssetRemoving   AssetEventType = "asset.removing"
	EventAssetRemoved    AssetEventType = "asset.removed"
)

// AssetEvent is the payload published on every asset lifecycle transition.
type AssetEvent struct {
	Type       AssetEventType `json:"type"`
	AssetID    string         `json:"asset_id"`
	MovieID    string         `json:"movie_id"`
	Slot       Slot           `json:"slot"`
	Status     AssetStatus    `json:"status"`
	Uploaded   int            `json:"uploaded"`
	Total      int            `json:"total"`
	OccurredAt time.Time      `json:"occurred_at"`
}
