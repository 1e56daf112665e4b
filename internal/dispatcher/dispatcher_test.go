package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(":TEMP:GET:", func(e Event) (any, error) {
		got = e
		return 20.0, nil
	})

	result, err := d.Dispatch(Event{Command: ":TEMP:GET:", Args: []string{"crate"}})
	require.NoError(t, err)
	assert.Equal(t, 20.0, result)
	assert.Equal(t, []string{"crate"}, got.Args)
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: ":UNKNOWN:"})
	assert.ErrorIs(t, err, ErrNoHandler)
	assert.EqualError(t, err, "unknown command: :UNKNOWN:")
}

func TestDispatcher_Timeout(t *testing.T) {
	d, _ := newTestDispatcher(t)

	release := make(chan struct{})
	defer close(release)
	d.Register(":SLOW:", func(e Event) (any, error) {
		<-release
		return nil, nil
	}, Timeout(20*time.Millisecond))
	d.Register(":FAST:", func(e Event) (any, error) {
		return "ok", nil
	}, Timeout(time.Second))

	_, err := d.Dispatch(Event{Command: ":SLOW:"})
	assert.ErrorIs(t, err, ErrTimeout)

	v, err := d.Dispatch(Event{Command: ":FAST:"})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register(":HEAT:ADD:", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: ":HEAT:ADD:"})
		require.NoError(t, err)
		assert.Equal(t, "queued", result)
	}

	wg.Wait()
	assert.Equal(t, int32(3), processed.Load())
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(":FULL:", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(2))
	defer close(block)

	_, err := d.Dispatch(Event{Command: ":FULL:"})
	require.NoError(t, err)
	<-started

	_, err = d.Dispatch(Event{Command: ":FULL:"})
	require.NoError(t, err)
	_, err = d.Dispatch(Event{Command: ":FULL:"})
	require.NoError(t, err)

	_, err = d.Dispatch(Event{Command: ":FULL:"})
	assert.EqualError(t, err, "queue full: :FULL:")
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(":BLOCKING:", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	d.Dispatch(Event{Command: ":BLOCKING:"})
	<-started
	d.Dispatch(Event{Command: ":BLOCKING:"})

	done := make(chan struct{})
	go func() {
		d.Dispatch(Event{Command: ":BLOCKING:"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
}

func TestDispatcher_BufferedErrorIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	done := make(chan struct{})
	d.Register(":REGISTER:", func(e Event) (any, error) {
		defer close(done)
		return nil, errors.New("out of bounds")
	}, Buffered(1))

	_, err := d.Dispatch(Event{Command: ":REGISTER:"})
	require.NoError(t, err)
	<-done

	assert.Eventually(t, func() bool {
		for _, msg := range logger.snapshot() {
			if strings.HasPrefix(msg, "ERROR: buffered event failed") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":STATUS:", func(e Event) (any, error) {
		return "ok", nil
	}, Logged())

	_, err := d.Dispatch(Event{Command: ":STATUS:", Args: []string{"a", "b"}})
	require.NoError(t, err)

	msgs := logger.snapshot()
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[0], "DEBUG: handling event"))
	assert.True(t, strings.HasPrefix(msgs[1], "DEBUG: event complete"))
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":FIRE:ON:", func(e Event) (any, error) {
		return nil, fmt.Errorf("body not registered")
	}, Logged())

	_, err := d.Dispatch(Event{Command: ":FIRE:ON:"})
	require.Error(t, err)

	msgs := logger.snapshot()
	require.NotEmpty(t, msgs)
	assert.True(t, strings.HasPrefix(msgs[len(msgs)-1], "ERROR: event failed"))
}

func TestDispatcher_HasHandlerAndCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)

	noop := func(e Event) (any, error) { return nil, nil }
	d.Register(":SIM:START:", noop)
	d.Register(":SIM:END:", noop)

	assert.True(t, d.HasHandler(":SIM:START:"))
	assert.False(t, d.HasHandler(":SIM:PAUSE:"))
	assert.Equal(t, []string{":SIM:END:", ":SIM:START:"}, d.Commands())
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var wg sync.WaitGroup
	wg.Add(1)

	d.Register(":COMBINED:", func(e Event) (any, error) {
		wg.Done()
		return "done", nil
	}, Buffered(100), Logged())

	result, err := d.Dispatch(Event{Command: ":COMBINED:"})
	require.NoError(t, err)
	assert.Equal(t, "queued", result)

	wg.Wait()
	assert.GreaterOrEqual(t, len(logger.snapshot()), 2)
}

func TestDispatcher_CloseDrainsBuffered(t *testing.T) {
	d, _ := newTestDispatcher(t)

	release := make(chan struct{})
	var handled atomic.Int32
	d.Register(":HEAT:ADD:", func(e Event) (any, error) {
		<-release
		handled.Add(1)
		return nil, nil
	}, Buffered(10))

	for i := 0; i < 5; i++ {
		_, err := d.Dispatch(Event{Command: ":HEAT:ADD:"})
		require.NoError(t, err)
	}

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	close(release)
	<-closed

	assert.Equal(t, int32(5), handled.Load())
}

func TestDispatcher_DispatchAfterClose(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(":STATUS:", func(e Event) (any, error) { return "ok", nil })

	d.Close()
	d.Close()

	_, err := d.Dispatch(Event{Command: ":STATUS:"})
	assert.ErrorIs(t, err, ErrClosed)
}
