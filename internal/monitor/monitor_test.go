package monitor

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/heatbox/extension/internal/model"
	"github.com/heatbox/extension/internal/recorder"
	"github.com/heatbox/extension/internal/session"
	"github.com/heatbox/extension/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats recorder.Stats

func (f fixedStats) Stats() recorder.Stats { return recorder.Stats(f) }

type fixedQueues model.WriteQueueLengths

func (f fixedQueues) QueueLengths() model.WriteQueueLengths { return model.WriteQueueLengths(f) }

func TestGetStatus(t *testing.T) {
	ctx := session.NewContext()
	ctx.SessionStarted(core.Session{ID: 3, Name: "warehouse"})
	ctx.TickCompleted(core.TickStat{Tick: 12}, nil)

	svc := NewService(Dependencies{
		Session:  ctx,
		Recorder: fixedStats{Pending: 4, Written: 100, Failed: 1, LastWrite: 2500 * time.Microsecond},
		Queues:   fixedQueues{Ticks: 2, BodySamples: 9},
		Dir:      t.TempDir(),
	})

	st := svc.GetStatus()
	assert.Equal(t, "warehouse", st.Session)
	assert.Equal(t, uint(3), st.SessionID)
	assert.True(t, st.Recording)
	assert.Equal(t, uint64(12), st.Ticks)
	assert.Equal(t, 4, st.Pending)
	assert.Equal(t, uint64(100), st.Written)
	assert.Equal(t, uint64(1), st.Failed)
	assert.InDelta(t, 2.5, st.LastWriteMs, 1e-9)
	require.NotNil(t, st.WriteQueues)
	assert.Equal(t, uint32(9), st.WriteQueues.BodySamples)
}

func TestGetStatusWithoutQueues(t *testing.T) {
	svc := NewService(Dependencies{Dir: t.TempDir()})
	st := svc.GetStatus()
	assert.Nil(t, st.WriteQueues)
	assert.False(t, st.Recording)
}

func TestWriteStatus(t *testing.T) {
	ctx := session.NewContext()
	ctx.SessionStarted(core.Session{Name: "run"})
	svc := NewService(Dependencies{
		Session:  ctx,
		Recorder: fixedStats{Written: 7},
		Dir:      t.TempDir(),
	})

	require.NoError(t, svc.WriteStatus())

	data, err := os.ReadFile(svc.Path())
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, "run", st.Session)
	assert.Equal(t, uint64(7), st.Written)
}

func TestStartStop(t *testing.T) {
	ctx := session.NewContext()
	ctx.SessionStarted(core.Session{Name: "run"})
	svc := NewService(Dependencies{
		Session:  ctx,
		Recorder: fixedStats{},
		Dir:      t.TempDir(),
		Interval: 10 * time.Millisecond,
	})

	svc.Start()
	svc.Start()
	assert.True(t, svc.IsRunning())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(svc.Path())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	svc.Stop()
	assert.False(t, svc.IsRunning())
	svc.Stop()
}

func TestIdleSessionSkipsWrite(t *testing.T) {
	svc := NewService(Dependencies{
		Session:  session.NewContext(),
		Dir:      t.TempDir(),
		Interval: 5 * time.Millisecond,
	})
	svc.Start()
	time.Sleep(50 * time.Millisecond)
	svc.Stop()

	_, err := os.Stat(svc.Path())
	assert.True(t, os.IsNotExist(err))
}
