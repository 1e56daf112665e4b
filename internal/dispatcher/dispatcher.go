package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNoHandler is returned for commands nobody registered.
	ErrNoHandler = errors.New("unknown command")
	// ErrTimeout is returned when a handler registered with Timeout overruns.
	ErrTimeout = errors.New("handler timed out")
	// ErrClosed is returned by Dispatch once Close has been called.
	ErrClosed = errors.New("dispatcher closed")
)

// Event is a single command received from the host bridge.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
	timeout    time.Duration
}

// Buffered runs the handler on its own goroutine behind a queue of size
// events. Dispatch replies "queued" without waiting for the result.
func Buffered(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Blocking makes a buffered handler wait for room instead of dropping.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Timeout fails a synchronous call with ErrTimeout after d. The handler
// keeps running in the background.
func Timeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// buffer feeds one buffered handler.
type buffer struct {
	events chan Event
}

type instruments struct {
	queued    metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	duration  metric.Float64Histogram
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger Logger
	inst   instruments

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	buffers  map[string]*buffer

	closed  chan struct{}
	closing sync.Once
	workers sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]*buffer),
		closed:   make(chan struct{}),
	}
	if err := d.instrument(meter()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) instrument(m metric.Meter) error {
	var err error
	if d.inst.queued, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Events waiting in buffered handler queues"),
	); err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}
	if _, err = m.RegisterCallback(d.observeQueues, d.inst.queued); err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}
	if d.inst.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Buffered events handled"),
	); err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}
	if d.inst.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Buffered events dropped on a full queue"),
	); err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}
	if d.inst.duration, err = m.Float64Histogram(
		"dispatcher.dispatch.duration",
		metric.WithDescription("Time spent in Dispatch"),
		metric.WithUnit("ms"),
	); err != nil {
		return fmt.Errorf("creating duration histogram: %w", err)
	}
	return nil
}

func (d *Dispatcher) observeQueues(_ context.Context, o metric.Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, b := range d.buffers {
		o.ObserveInt64(d.inst.queued, int64(len(b.events)),
			metric.WithAttributes(attribute.String("command", cmd)))
	}
	return nil
}

// Register adds a handler for command. A later registration replaces an
// earlier one.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case o.bufferSize > 0:
		h = d.buffered(command, o.bufferSize, o.blocking, h)
	case o.timeout > 0:
		h = withTimeout(command, o.timeout, h)
	}
	if o.logged {
		h = d.withLogging(command, h)
	}

	d.mu.Lock()
	d.handlers[command] = h
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	select {
	case <-d.closed:
		return nil, fmt.Errorf("%w: %s", ErrClosed, e.Command)
	default:
	}

	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, e.Command)
	}

	start := time.Now()
	v, err := h(e)
	d.inst.duration.Record(context.Background(),
		float64(time.Since(start).Microseconds())/1000,
		metric.WithAttributes(
			attribute.String("command", e.Command),
			attribute.Bool("error", err != nil),
		))
	return v, err
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Commands lists the registered commands in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		out = append(out, cmd)
	}
	d.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Close rejects further events and waits for buffered handlers to work
// through what they already accepted.
func (d *Dispatcher) Close() {
	d.closing.Do(func() { close(d.closed) })
	d.workers.Wait()
}

func (d *Dispatcher) buffered(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	b := &buffer{events: make(chan Event, size)}
	d.mu.Lock()
	d.buffers[command] = b
	d.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("command", command))
	handle := func(e Event) {
		if _, err := h(e); err != nil {
			d.logger.Error("buffered event failed", "command", command, "error", err)
		}
		d.inst.processed.Add(context.Background(), 1, attrs)
	}

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for {
			select {
			case e := <-b.events:
				handle(e)
			case <-d.closed:
				for {
					select {
					case e := <-b.events:
						handle(e)
					default:
						return
					}
				}
			}
		}
	}()

	if blocking {
		return func(e Event) (any, error) {
			select {
			case b.events <- e:
				return "queued", nil
			case <-d.closed:
				return nil, fmt.Errorf("%w: %s", ErrClosed, command)
			}
		}
	}
	return func(e Event) (any, error) {
		select {
		case b.events <- e:
			return "queued", nil
		default:
			d.inst.dropped.Add(context.Background(), 1, attrs)
			return nil, fmt.Errorf("queue full: %s", command)
		}
	}
}

func withTimeout(command string, limit time.Duration, h HandlerFunc) HandlerFunc {
	type result struct {
		v   any
		err error
	}
	return func(e Event) (any, error) {
		done := make(chan result, 1)
		go func() {
			v, err := h(e)
			done <- result{v, err}
		}()

		timer := time.NewTimer(limit)
		defer timer.Stop()
		select {
		case r := <-done:
			return r.v, r.err
		case <-timer.C:
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, command, limit)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		v, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
			return v, err
		}
		d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		return v, nil
	}
}
