// Package recorder forwards simulation notifications to a storage backend.
// Notifications are queued in order on the simulation goroutine and written
// by a single writer goroutine, so a slow backend never stalls a tick.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heatbox/extension/internal/queue"
	"github.com/heatbox/extension/internal/storage"
	"github.com/heatbox/extension/pkg/core"
)

type entryKind uint8

const (
	kindStart entryKind = iota
	kindEnd
	kindTick
	kindSample
	kindFire
	kindHalfBurnt
	kindFlush
)

type entry struct {
	kind    entryKind
	session core.Session
	ticks   uint64
	tick    core.TickStat
	sample  core.BodySample
	fire    core.FireEvent
	half    core.HalfBurntEvent
	done    chan struct{}
}

// Stats describes writer progress.
type Stats struct {
	Pending   int
	Written   uint64
	Failed    uint64
	LastWrite time.Duration
}

// Recorder implements sim.Listener.
type Recorder struct {
	backend storage.Backend
	logger  *slog.Logger
	q       *queue.Queue[entry]

	written   atomic.Uint64
	failed    atomic.Uint64
	lastWrite atomic.Int64

	mu      sync.Mutex
	closed  bool
	stop    chan struct{}
	stopped chan struct{}
}

// New creates a recorder writing to backend. Call Start to run the writer.
func New(backend storage.Backend, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		backend: backend,
		logger:  logger.With("component", "recorder"),
		q:       queue.New[entry](),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs the writer goroutine.
func (r *Recorder) Start() {
	go r.loop()
}

// Close stops accepting notifications, writes what is queued and waits for
// the writer to exit.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.stop)
	r.mu.Unlock()
	<-r.stopped
}

// Flush blocks until everything queued before the call has been written.
func (r *Recorder) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !r.push(entry{kind: kindFlush, done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the writer counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Pending:   r.q.Len(),
		Written:   r.written.Load(),
		Failed:    r.failed.Load(),
		LastWrite: time.Duration(r.lastWrite.Load()),
	}
}

func (r *Recorder) push(e entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Debug("Dropping record after close", "kind", e.kind)
		return false
	}
	r.q.Push(e)
	return true
}

func (r *Recorder) SessionStarted(s core.Session) {
	r.push(entry{kind: kindStart, session: s})
}

func (r *Recorder) SessionEnded(ticks uint64) {
	r.push(entry{kind: kindEnd, ticks: ticks})
}

func (r *Recorder) TickCompleted(stat core.TickStat, bodies []core.BodySample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	entries := make([]entry, 0, len(bodies)+1)
	entries = append(entries, entry{kind: kindTick, tick: stat})
	for _, b := range bodies {
		entries = append(entries, entry{kind: kindSample, sample: b})
	}
	r.q.Push(entries...)
}

func (r *Recorder) FireChanged(ev core.FireEvent) {
	r.push(entry{kind: kindFire, fire: ev})
}

func (r *Recorder) BodyHalfBurnt(ev core.HalfBurntEvent) {
	r.push(entry{kind: kindHalfBurnt, half: ev})
}

func (r *Recorder) loop() {
	defer close(r.stopped)
	for {
		select {
		case <-r.stop:
			r.drain()
			return
		case <-r.q.Ready():
			r.drain()
		}
	}
}

func (r *Recorder) drain() {
	items := r.q.Drain()
	if len(items) == 0 {
		return
	}
	start := time.Now()
	for i := range items {
		r.write(&items[i])
	}
	r.lastWrite.Store(int64(time.Since(start)))
}

func (r *Recorder) write(e *entry) {
	var (
		err error
		op  string
	)
	switch e.kind {
	case kindFlush:
		close(e.done)
		return
	case kindStart:
		op = "start session"
		err = r.backend.StartSession(&e.session)
		if err == nil {
			r.logger.Info("Recording session", "sessionId", e.session.ID, "name", e.session.Name)
		}
	case kindEnd:
		op = "end session"
		err = r.backend.EndSession(e.ticks)
		if err == nil {
			attrs := []any{"ticks", e.ticks}
			if exp, ok := r.backend.(storage.Exporter); ok && exp.ExportedFilePath() != "" {
				attrs = append(attrs, "path", exp.ExportedFilePath())
			}
			r.logger.Info("Recording finished", attrs...)
		}
	case kindTick:
		op = "record tick"
		err = r.backend.RecordTick(&e.tick)
	case kindSample:
		op = "record body sample"
		err = r.backend.RecordBodySample(&e.sample)
	case kindFire:
		op = "record fire event"
		err = r.backend.RecordFireEvent(&e.fire)
	case kindHalfBurnt:
		op = "record half burnt"
		err = r.backend.RecordHalfBurnt(&e.half)
	}

	if err != nil {
		r.failed.Add(1)
		r.logger.Error("Storage write failed", "op", op, "error", err)
		return
	}
	r.written.Add(1)
}
