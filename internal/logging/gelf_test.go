package logging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGelf struct {
	mu   sync.Mutex
	msgs []*gelf.Message
	err  error
}

func (f *fakeGelf) WriteMessage(m *gelf.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return f.err
}

func (f *fakeGelf) all() []*gelf.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*gelf.Message(nil), f.msgs...)
}

func TestGelfHandler_Message(t *testing.T) {
	w := &fakeGelf{}
	logger := slog.New(NewGelfHandler(w, slog.LevelDebug))

	logger.Error("sampling gave up", "body", "barrel", "samples", 256, "ratio", 0.5, "final", true)

	msgs := w.all()
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, "1.1", m.Version)
	assert.Equal(t, "sampling gave up", m.Short)
	assert.Empty(t, m.Full)
	assert.Equal(t, int32(3), m.Level)
	assert.NotEmpty(t, m.Host)
	assert.InDelta(t, float64(time.Now().Unix()), m.TimeUnix, 5)
	assert.Equal(t, "barrel", m.Extra["_body"])
	assert.Equal(t, int64(256), m.Extra["_samples"])
	assert.Equal(t, 0.5, m.Extra["_ratio"])
	assert.Equal(t, true, m.Extra["_final"])
	assert.Equal(t, ServiceName, m.Extra["_facility"])
}

func TestGelfHandler_MultilineMessage(t *testing.T) {
	w := &fakeGelf{}
	logger := slog.New(NewGelfHandler(w, slog.LevelInfo))

	logger.Info("first line\nsecond line")

	m := w.all()[0]
	assert.Equal(t, "first line", m.Short)
	assert.Equal(t, "first line\nsecond line", m.Full)
}

func TestGelfHandler_LevelFilter(t *testing.T) {
	w := &fakeGelf{}
	h := NewGelfHandler(w, slog.LevelWarn)
	logger := slog.New(h)

	logger.Info("dropped")
	logger.Warn("kept")

	require.Len(t, w.all(), 1)
	assert.Equal(t, "kept", w.all()[0].Short)
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestGelfHandler_AttrsAndGroups(t *testing.T) {
	w := &fakeGelf{}
	logger := slog.New(NewGelfHandler(w, slog.LevelInfo)).
		With("component", "sim").
		WithGroup("fire").
		With("id", 3)

	logger.Info("spawned", "size", 1.5, slog.Group("center", "x", 1, "y", 2))

	m := w.all()[0]
	assert.Equal(t, "sim", m.Extra["_component"])
	assert.Equal(t, int64(3), m.Extra["_fire_id"])
	assert.Equal(t, 1.5, m.Extra["_fire_size"])
	assert.Equal(t, int64(1), m.Extra["_fire_center_x"])
	assert.Equal(t, int64(2), m.Extra["_fire_center_y"])
}

func TestGelfHandler_WithGroupEmpty(t *testing.T) {
	h := NewGelfHandler(&fakeGelf{}, slog.LevelInfo)
	assert.Same(t, h, h.WithGroup(""))
}

func TestGelfHandler_WriteError(t *testing.T) {
	w := &fakeGelf{err: errors.New("network down")}
	h := NewGelfHandler(w, slog.LevelInfo)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0)
	assert.EqualError(t, h.Handle(context.Background(), r), "network down")
}

func TestSyslogLevel(t *testing.T) {
	assert.Equal(t, int32(7), syslogLevel(slog.LevelDebug))
	assert.Equal(t, int32(6), syslogLevel(slog.LevelInfo))
	assert.Equal(t, int32(4), syslogLevel(slog.LevelWarn))
	assert.Equal(t, int32(3), syslogLevel(slog.LevelError))
	assert.Equal(t, int32(3), syslogLevel(slog.LevelError+4))
}
