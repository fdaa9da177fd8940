package domain

import (
	"encoding/json"
	"time"
)

// Event is one occurrence in the business flow, fanned out to subscribers.
// OccurredAt is always assigned by the dispatcher.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// TimestampLayout renders UTC times with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// WireMessage is the exact JSON body POSTed to subscriber endpoints.
type WireMessage struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Wire converts the event into its delivery body.
func (e Event) Wire() WireMessage {
	data := e.Payload
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return WireMessage{
		Event:     e.Type,
		Timestamp: e.OccurredAt.UTC().Format(TimestampLayout),
		Data:      data,
	}
}
