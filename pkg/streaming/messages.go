// Package streaming defines the envelope protocol used to stream simulation
// records to a remote collector.
package streaming

import (
	"encoding/json"

	"github.com/heatbox/extension/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeTickStat     = "tick_stat"
	TypeBodySample   = "body_sample"
	TypeFireEvent    = "fire_event"
	TypeHalfBurnt    = "half_burnt"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload carries the session header.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// EndSessionPayload carries the final tick count.
type EndSessionPayload struct {
	Ticks uint64 `json:"ticks"`
}
