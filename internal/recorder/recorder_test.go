package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/heatbox/extension/internal/sim"
	"github.com/heatbox/extension/internal/storage"
	"github.com/heatbox/extension/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ sim.Listener = (*Recorder)(nil)

// fakeBackend records every call as a short string.
type fakeBackend struct {
	mu      sync.Mutex
	calls   []string
	failOn  string
	block   chan struct{}
	exportP string
}

var _ storage.Backend = (*fakeBackend)(nil)

func (f *fakeBackend) record(call string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failOn != "" && f.failOn == call {
		return errors.New("backend down")
	}
	return nil
}

func (f *fakeBackend) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Init() error  { return nil }
func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) StartSession(s *core.Session) error {
	s.ID = 7
	return f.record("start:" + s.Name)
}

func (f *fakeBackend) EndSession(ticks uint64) error {
	return f.record(fmt.Sprintf("end:%d", ticks))
}

func (f *fakeBackend) RecordTick(t *core.TickStat) error {
	return f.record(fmt.Sprintf("tick:%d", t.Tick))
}

func (f *fakeBackend) RecordBodySample(s *core.BodySample) error {
	return f.record(fmt.Sprintf("sample:%d:%s", s.Tick, s.Body))
}

func (f *fakeBackend) RecordFireEvent(e *core.FireEvent) error {
	return f.record(fmt.Sprintf("fire:%s:%d", e.Kind, e.FireID))
}

func (f *fakeBackend) RecordHalfBurnt(e *core.HalfBurntEvent) error {
	return f.record(fmt.Sprintf("half:%d:%s", e.Tick, e.Body))
}

func (f *fakeBackend) ExportedFilePath() string { return f.exportP }

func newTestRecorder(t *testing.T, b storage.Backend) *Recorder {
	t.Helper()
	r := New(b, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Start()
	t.Cleanup(r.Close)
	return r
}

func flush(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Flush(ctx))
}

func TestRecorderPreservesOrder(t *testing.T) {
	b := &fakeBackend{}
	r := newTestRecorder(t, b)

	r.SessionStarted(core.Session{Name: "run"})
	r.FireChanged(core.FireEvent{Kind: core.FireSpawned, FireID: 1})
	r.TickCompleted(core.TickStat{Tick: 1}, []core.BodySample{
		{Tick: 1, Body: "a"},
		{Tick: 1, Body: "b"},
	})
	r.BodyHalfBurnt(core.HalfBurntEvent{Tick: 1, Body: "a"})
	r.SessionEnded(1)
	flush(t, r)

	assert.Equal(t, []string{
		"start:run",
		"fire:spawned:1",
		"tick:1",
		"sample:1:a",
		"sample:1:b",
		"half:1:a",
		"end:1",
	}, b.all())

	stats := r.Stats()
	assert.Equal(t, uint64(7), stats.Written)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Pending)
}

func TestRecorderCountsFailures(t *testing.T) {
	b := &fakeBackend{failOn: "tick:2"}
	r := newTestRecorder(t, b)

	r.TickCompleted(core.TickStat{Tick: 1}, nil)
	r.TickCompleted(core.TickStat{Tick: 2}, nil)
	r.TickCompleted(core.TickStat{Tick: 3}, nil)
	flush(t, r)

	// a failed write does not stop later ones
	assert.Equal(t, []string{"tick:1", "tick:2", "tick:3"}, b.all())
	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Written)
	assert.Equal(t, uint64(1), stats.Failed)
}

func TestRecorderDoesNotBlockProducer(t *testing.T) {
	b := &fakeBackend{block: make(chan struct{})}
	r := newTestRecorder(t, b)

	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= 100; i++ {
			r.TickCompleted(core.TickStat{Tick: i}, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked on a stalled backend")
	}

	close(b.block)
	flush(t, r)
	assert.Len(t, b.all(), 100)
}

func TestCloseDrainsQueue(t *testing.T) {
	b := &fakeBackend{}
	r := New(b, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Start()

	for i := uint64(1); i <= 10; i++ {
		r.TickCompleted(core.TickStat{Tick: i}, nil)
	}
	r.Close()
	assert.Len(t, b.all(), 10)

	// notifications after close are dropped
	r.TickCompleted(core.TickStat{Tick: 11}, nil)
	r.SessionEnded(11)
	assert.NoError(t, r.Flush(context.Background()))
	assert.Len(t, b.all(), 10)

	// closing twice is harmless
	r.Close()
}

func TestFlushHonorsContext(t *testing.T) {
	b := &fakeBackend{block: make(chan struct{})}
	r := newTestRecorder(t, b)
	t.Cleanup(func() { close(b.block) })

	r.TickCompleted(core.TickStat{Tick: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Flush(ctx), context.DeadlineExceeded)
}
