// internal/model/event.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventStreamConnected    EventType = "STREAM_CONNECTED"
	EventStreamDisconnected EventType = "STREAM_DISCONNECTED"
	EventStreamError        EventType = "STREAM_ERROR"
	EventStreamEOF          EventType = "STREAM_EOF"
	EventStateChange        EventType = "STATE_CHANGE"
	EventWriteError         EventType = "WRITE_ERROR"
	EventTrackStarted       EventType = "TRACK_STARTED"
	EventTrackStopped       EventType = "TRACK_STOPPED"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StreamEvent represents a lifecycle or status event in the system
type StreamEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	SessionID string     `json:"session_id,omitempty"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR
}

// NewStreamEvent creates an event stamped with a fresh ID and the
// current time
func NewStreamEvent(eventType EventType, severity, source string, data JSONObject) *StreamEvent {
	return &StreamEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Severity:  severity,
	}
}
