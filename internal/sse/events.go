// Package sse pushes "changes available" hints to connected devices over
// Server-Sent Events so they can sync without polling.
package sse

import (
	"time"
)

// Devices still pull the actual records through POST /api/v1/sync; events
// only tell them when that is worth doing.

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventConnected is sent once when a stream opens.
	EventConnected EventType = "connected"
	// EventChangesAvailable is sent after another device's sync committed changes.
	EventChangesAvailable EventType = "changes_available"
	// EventHeartbeat keeps idle connections open through proxies.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// SourceDevice is the device whose sync produced the event. Clients
	// registered with the same device id do not receive it.
	SourceDevice string `json:"-"`
}

// ConnectedEventData is the payload of the connected event.
type ConnectedEventData struct {
	ClientID string `json:"client_id"`
	DeviceID string `json:"device_id,omitempty"`
}

// ChangesAvailableEventData is the payload of changes_available events.
type ChangesAvailableEventData struct {
	ServerTime time.Time `json:"server_time"`
	DeviceID   string    `json:"device_id"`
	Accepted   int       `json:"accepted"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewChangesAvailableEvent builds the event sent after a sync from deviceID.
func NewChangesAvailableEvent(deviceID string, serverTime time.Time, accepted int) Event {
	return Event{
		Type:      EventChangesAvailable,
		Timestamp: time.Now().UTC(),
		Data: ChangesAvailableEventData{
			ServerTime: serverTime,
			DeviceID:   deviceID,
			Accepted:   accepted,
		},
		SourceDevice: deviceID,
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now().UTC()
	return Event{
		Type:      EventHeartbeat,
		Timestamp: now,
		Data:      HeartbeatEventData{ServerTime: now},
	}
}
