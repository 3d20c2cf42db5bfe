package models

import (
	"encoding/json"
	"time"
)

type HistoryKind string

const (
	HistoryKindPrediction HistoryKind = "prediction"
	HistoryKindActivity   HistoryKind = "activity"
)

type HistoryEntry struct {
	ID         string          `json:"id"`
	Kind       HistoryKind     `json:"kind"`
	RegionID   string          `json:"region_id,omitempty"`
	Summary    string          `json:"summary"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}
