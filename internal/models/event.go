package models

import "time"

type EventType string

const (
	EventAlertCreated        EventType = "alert.created"
	EventAlertUpdated        EventType = "alert.updated"
	EventAlertResolved       EventType = "alert.resolved"
	EventBroadcastDispatched EventType = "broadcast.dispatched"
	EventBroadcastDelivered  EventType = "broadcast.delivered"
	EventBroadcastCancelled  EventType = "broadcast.cancelled"
)

// Event is a state change pushed to stream subscribers. Exactly one of Alert
// or Broadcast is set.
type Event struct {
	Type      EventType  `json:"type"`
	RegionID  string     `json:"region_id"`
	Alert     *Alert     `json:"alert,omitempty"`
	Broadcast *Broadcast `json:"broadcast,omitempty"`
	At        time.Time  `json:"at"`
}
