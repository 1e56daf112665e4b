package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/heatbox/extension/internal/queue"
	"github.com/heatbox/extension/pkg/streaming"
)

const (
	maxPending     = 100_000
	ackChSize      = 16
	maxReconnect   = 10
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	ackTimeout     = 10 * time.Second
)

// connection owns one socket at a time. A single supervisor goroutine does
// every write, including pings, close frames and the start_session replay
// after a redial; a reader goroutine per socket routes acks.
type connection struct {
	url    string
	secret string
	logger *slog.Logger

	outbox  *queue.Queue[[]byte]
	carry   [][]byte // unsent after a write failure; supervisor only
	acks    chan streaming.AckMessage
	done    chan struct{}
	wg      sync.WaitGroup
	backoff time.Duration

	mu     sync.Mutex
	replay []byte // start_session of the running session
	closed bool

	dropped atomic.Uint64
	redials atomic.Uint64
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		logger:  logger,
		outbox:  queue.New[[]byte](),
		acks:    make(chan streaming.AckMessage, ackChSize),
		done:    make(chan struct{}),
		backoff: initialBackoff,
	}
}

// open dials once and starts the supervisor. A failed first dial is an
// error; later losses are redialed in the background.
func (c *connection) open(rawURL, secret string) error {
	c.url = rawURL
	c.secret = secret

	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go c.supervise(conn)
	return nil
}

func (c *connection) dial() (*ws.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) supervise(conn *ws.Conn) {
	defer c.wg.Done()
	for conn != nil {
		lost := make(chan struct{})
		var once sync.Once
		fail := func(err error) {
			once.Do(func() {
				c.logger.Warn("WebSocket connection lost", "error", err)
				close(lost)
			})
		}

		go c.readLoop(conn, fail)
		stopping := c.writeLoop(conn, lost, fail)
		_ = conn.Close()
		if stopping {
			return
		}
		conn = c.redial()
	}
}

// writeLoop returns true when the connection is shutting down and false
// when the socket was lost.
func (c *connection) writeLoop(conn *ws.Conn, lost <-chan struct{}, fail func(error)) bool {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// anything queued while redialing goes out first
	if err := c.flush(conn); err != nil {
		fail(err)
		return false
	}

	for {
		select {
		case <-c.done:
			if err := c.flush(conn); err != nil {
				c.logger.Warn("Unsent records at shutdown", "count", len(c.carry), "error", err)
			}
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return true
		case <-lost:
			return false
		case <-c.outbox.Ready():
			if err := c.flush(conn); err != nil {
				fail(err)
				return false
			}
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				fail(err)
				return false
			}
		}
	}
}

// flush writes carried-over messages, then everything queued. On failure the
// unsent tail is carried to the next socket.
func (c *connection) flush(conn *ws.Conn) error {
	batch := append(c.carry, c.outbox.Drain()...)
	c.carry = nil
	for i, data := range batch {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.carry = batch[i:]
			return err
		}
		if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
			c.carry = batch[i:]
			return err
		}
	}
	return nil
}

func (c *connection) readLoop(conn *ws.Conn, fail func(error)) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				fail(err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// redial reconnects with exponential backoff and replays start_session so
// the collector can attach what follows to the running session. It returns
// nil when shutting down or out of attempts.
func (c *connection) redial() *ws.Conn {
	backoff := c.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := c.dial()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		replay := c.replay
		c.mu.Unlock()
		if replay != nil {
			err := conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = conn.WriteMessage(ws.TextMessage, replay)
			}
			if err != nil {
				c.logger.Warn("Failed to replay start_session after reconnect", "error", err)
				_ = conn.Close()
				continue
			}
			c.carry = dropReplay(c.carry, replay)
		}

		c.redials.Add(1)
		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		return conn
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
	return nil
}

// dropReplay removes a start_session that was carried over and has just
// been replayed.
func dropReplay(carry [][]byte, replay []byte) [][]byte {
	out := carry[:0]
	for _, data := range carry {
		if !bytes.Equal(data, replay) {
			out = append(out, data)
		}
	}
	return out
}

func (c *connection) setReplay(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replay = data
}

// send queues data for the supervisor. Records beyond maxPending are
// dropped so an unreachable collector cannot exhaust memory.
func (c *connection) send(data []byte) {
	if c.outbox.Len() >= maxPending {
		if n := c.dropped.Add(1); n&(n-1) == 0 {
			c.logger.Warn("WebSocket outbox full, dropping records", "dropped", n)
		}
		return
	}
	c.outbox.Push(data)
}

// sendAndWait sends data and blocks until the server acknowledges with a
// matching ack message or the timeout expires.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close stops the supervisor, which flushes and sends a close frame.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Debug("WebSocket closed", "dropped", c.dropped.Load(), "redials", c.redials.Load())
	return nil
}
