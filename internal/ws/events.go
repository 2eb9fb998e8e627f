package ws

import (
	"encoding/json"
	"time"
)

// Event types pushed to subscribers.
const (
	EventBlockSealed = "block.sealed"
	EventShutdown    = "shutdown"
	EventReset       = "reset"
)

// Event is the structured message sent to WebSocket clients. IDs increase by
// one per broadcast so clients can resume with last_event_id.
type Event struct {
	Type string          `json:"type"`
	ID   uint64          `json:"id"`
	Data json.RawMessage `json:"data"`
	Time time.Time       `json:"time"`
}

// SubscribeMsg is sent by the client on connect to request event replay.
type SubscribeMsg struct {
	Type        string `json:"type"`
	LastEventID uint64 `json:"last_event_id"`
}

// ResetMsg tells the client the requested events are gone and it should
// re-read the chain from the API.
type ResetMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
