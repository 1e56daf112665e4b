package hostbridge

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/heatbox/extension/internal/dispatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFunc func(dispatcher.Event) (any, error)

func (f dispatchFunc) Dispatch(e dispatcher.Event) (any, error) { return f(e) }

func echo() dispatchFunc {
	return func(e dispatcher.Event) (any, error) {
		switch e.Command {
		case ":ECHO:":
			return e.Args, nil
		case ":NIL:":
			return nil, nil
		case ":FAIL:":
			return nil, errors.New(`bad "input"`)
		case ":NAN:":
			return math.NaN(), nil
		}
		return nil, dispatcher.ErrNoHandler
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		ok      bool
		command string
		args    []string
	}{
		{"blank", "   ", false, "", nil},
		{"comment", "# warm up", false, "", nil},
		{"no args", ":STATUS:", true, ":STATUS:", []string{}},
		{"args trimmed", " :HEAT:ADD: | 1 |2|3 | 450 ", true, ":HEAT:ADD:", []string{"1", "2", "3", "450"}},
		{"empty arg kept", ":LOG:|info|", true, ":LOG:", []string{"info", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := ParseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.command, e.Command)
			assert.Equal(t, tt.args, e.Args)
		})
	}
}

func TestFormatResponse(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		result   any
		err      error
		expected string
	}{
		{"nil result", ":SIM:START:", nil, nil, `["ok",":SIM:START:"]`},
		{"string", ":VERSION:", "1.0.0", nil, `["ok",":VERSION:","1.0.0"]`},
		{"number", ":TEMP:GET:", 312.5, nil, `["ok",":TEMP:GET:",312.5]`},
		{"nested", ":BURNING:GET:", [][3]int{{1, 2, 3}}, nil, `["ok",":BURNING:GET:",[[1,2,3]]]`},
		{"map", ":STATUS:", map[string]int{"tick": 4}, nil, `["ok",":STATUS:",{"tick":4}]`},
		{"error escaped", ":LOG:", nil, errors.New(`say "hi"`), `["error",":LOG:","say \"hi\""]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatResponse(tt.command, tt.result, tt.err))
		})
	}
}

func TestFormatResponseUnencodable(t *testing.T) {
	got := FormatResponse(":NAN:", math.NaN(), nil)
	assert.True(t, strings.HasPrefix(got, `["error",":NAN:","encode result:`), got)
}

func TestHandle(t *testing.T) {
	b := New(echo())
	b.now = func() time.Time { return time.Unix(0, 42) }

	assert.Equal(t, `["ok",":ECHO:",["a","b"]]`, b.Handle(":ECHO:|a|b"))
	assert.Equal(t, `["ok",":NIL:"]`, b.Handle(":NIL:"))
	assert.Equal(t, `["error",":FAIL:","bad \"input\""]`, b.Handle(":FAIL:"))
	assert.Equal(t, `["error",":NOPE:","unknown command"]`, b.Handle(":NOPE:"))
	assert.Equal(t, `["ok",":TIMESTAMP:","42"]`, b.Handle(":TIMESTAMP:"))
	assert.Empty(t, b.Handle("# nothing"))
}

func TestServe(t *testing.T) {
	in := strings.NewReader(":ECHO:|x\n\n# skip\n:NIL:\n:FAIL:\n")
	var out bytes.Buffer

	require.NoError(t, New(echo()).Serve(context.Background(), in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		`["ok",":ECHO:",["x"]]`,
		`["ok",":NIL:"]`,
		`["error",":FAIL:","bad \"input\""]`,
	}, lines)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := New(echo()).Serve(ctx, strings.NewReader(":NIL:\n"), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}
