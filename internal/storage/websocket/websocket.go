package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/heatbox/extension/pkg/core"
	"github.com/heatbox/extension/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams simulation records over WebSocket to a collector.
// It implements storage.Backend but not storage.Exporter.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("component", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.open(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession sends the session header and waits for server ack. The
// collector owns session IDs, so s.ID is left as given.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.conn.setReplay(data)

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession(ticks uint64) error {
	data, err := marshalEnvelope(streaming.TypeEndSession, streaming.EndSessionPayload{Ticks: ticks})
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	b.conn.setReplay(nil)

	return err
}

func (b *Backend) RecordTick(t *core.TickStat) error {
	return b.sendEnvelope(streaming.TypeTickStat, t)
}

func (b *Backend) RecordBodySample(s *core.BodySample) error {
	return b.sendEnvelope(streaming.TypeBodySample, s)
}

func (b *Backend) RecordFireEvent(e *core.FireEvent) error {
	return b.sendEnvelope(streaming.TypeFireEvent, e)
}

func (b *Backend) RecordHalfBurnt(e *core.HalfBurntEvent) error {
	return b.sendEnvelope(streaming.TypeHalfBurnt, e)
}
