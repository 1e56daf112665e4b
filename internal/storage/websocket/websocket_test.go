package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heatbox/extension/pkg/core"
	"github.com/heatbox/extension/pkg/streaming"
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and sends acks for start_session/end_session.
func testServer(t *testing.T, ack bool) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if !ack {
				continue
			}
			if env.Type == streaming.TypeStartSession || env.Type == streaming.TypeEndSession {
				data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
	secret   string
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) setSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = s
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartAndEndSession(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "test"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{Name: "TestSession"}))
	require.NoError(t, b.EndSession(12))

	msgs := ml.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, streaming.TypeStartSession, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndSession, msgs[1].Type)

	var start streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &start))
	assert.Equal(t, "TestSession", start.Session.Name)

	var end streaming.EndSessionPayload
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &end))
	assert.Equal(t, uint64(12), end.Ticks)

	ml.mu.Lock()
	assert.Equal(t, "test", ml.secret)
	ml.mu.Unlock()
}

func TestFireAndForgetMessages(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{Name: "S"}))

	require.NoError(t, b.RecordTick(&core.TickStat{Tick: 1, BurningCells: 2}))
	require.NoError(t, b.RecordBodySample(&core.BodySample{Tick: 1, Body: "crate", Temperature: 140}))
	require.NoError(t, b.RecordFireEvent(&core.FireEvent{Tick: 1, Kind: core.FireSpawned, Body: "crate", FireID: 1}))
	require.NoError(t, b.RecordHalfBurnt(&core.HalfBurntEvent{Tick: 1, Body: "crate"}))

	// end_session is written after everything queued before it, so its ack
	// means the server has seen every record.
	require.NoError(t, b.EndSession(1))

	msgs := ml.all()
	types := make(map[string]int)
	for _, m := range msgs {
		types[m.Type]++
	}

	assert.Equal(t, 1, types[streaming.TypeStartSession])
	assert.Equal(t, 1, types[streaming.TypeEndSession])
	assert.Equal(t, 1, types[streaming.TypeTickStat])
	assert.Equal(t, 1, types[streaming.TypeBodySample])
	assert.Equal(t, 1, types[streaming.TypeFireEvent])
	assert.Equal(t, 1, types[streaming.TypeHalfBurnt])

	for _, m := range msgs {
		if m.Type != streaming.TypeBodySample {
			continue
		}
		var sample core.BodySample
		require.NoError(t, json.Unmarshal(m.Payload, &sample))
		assert.Equal(t, core.BodyID("crate"), sample.Body)
		assert.Equal(t, 140.0, sample.Temperature)
	}
}

func TestSendAndWaitTimesOut(t *testing.T) {
	srv, _ := testServer(t, false)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{})
	require.NoError(t, err)

	start := time.Now()
	err = b.conn.sendAndWait(data, streaming.TypeStartSession, 50*time.Millisecond)
	assert.ErrorContains(t, err, "timeout waiting for ack")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInitFailsWithoutServer(t *testing.T) {
	b := New(Config{URL: "ws://127.0.0.1:1/ingest"}, nil)
	assert.Error(t, b.Init())
}

func TestInvalidURL(t *testing.T) {
	b := New(Config{URL: "://bad"}, nil)
	assert.ErrorContains(t, b.Init(), "invalid websocket URL")
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, _ := testServer(t, true)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

// flakyServer acks everything and drops the first connection right after
// acking its first start_session.
func flakyServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}
	var conns atomic.Int32

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		first := conns.Add(1) == 1

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)
			if env.Type == streaming.TypeStartSession || env.Type == streaming.TypeEndSession {
				data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
				if first {
					return
				}
			}
		}
	}))
	return srv, ml
}

func TestReconnectReplaysStartSession(t *testing.T) {
	srv, ml := flakyServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv)}, nil)
	b.conn.backoff = 10 * time.Millisecond
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{Name: "flaky"}))
	require.Eventually(t, func() bool { return b.conn.redials.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, b.RecordTick(&core.TickStat{Tick: 1}))
	require.NoError(t, b.EndSession(1))

	var types []string
	for _, m := range ml.all() {
		types = append(types, m.Type)
	}
	assert.Equal(t, []string{
		streaming.TypeStartSession,
		streaming.TypeStartSession,
		streaming.TypeTickStat,
		streaming.TypeEndSession,
	}, types)
}

func TestDropReplay(t *testing.T) {
	start := []byte(`{"type":"start_session"}`)
	tick := []byte(`{"type":"tick"}`)
	got := dropReplay([][]byte{start, tick}, start)
	assert.Equal(t, [][]byte{tick}, got)
}
