// Package hostbridge lets a host process drive the simulation over a
// newline-delimited text protocol.
//
// Each request line is a command followed by pipe-separated arguments:
//
//	:HEAT:ADD:|2|3|1|450
//
// Each reply is a single JSON array line:
//
//	["ok",":HEAT:ADD:"]
//	["ok",":TEMP:GET:",312.5]
//	["error",":TEMP:GET:","unknown body: crate"]
//
// Blank lines and lines starting with '#' are ignored.
package hostbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/heatbox/extension/internal/dispatcher"
)

// TimestampCommand is answered by the bridge itself.
const TimestampCommand = ":TIMESTAMP:"

// maxLineSize bounds a single request line.
const maxLineSize = 1 << 20

// Dispatcher routes an event to its handler.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Bridge reads requests and writes replies.
type Bridge struct {
	d   Dispatcher
	now func() time.Time
}

// New creates a bridge that forwards commands to d.
func New(d Dispatcher) *Bridge {
	return &Bridge{d: d, now: time.Now}
}

// ParseLine splits a request line into an event. ok is false for blank and
// comment lines.
func ParseLine(line string) (e dispatcher.Event, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return e, false
	}
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return dispatcher.Event{Command: parts[0], Args: parts[1:]}, true
}

// Handle runs one request line and returns its reply. It returns "" for
// lines that carry no command.
func (b *Bridge) Handle(line string) string {
	e, ok := ParseLine(line)
	if !ok {
		return ""
	}
	e.Timestamp = b.now()

	if e.Command == TimestampCommand {
		return FormatResponse(e.Command, strconv.FormatInt(e.Timestamp.UTC().UnixNano(), 10), nil)
	}
	result, err := b.d.Dispatch(e)
	return FormatResponse(e.Command, result, err)
}

// Serve handles every line of r until EOF or ctx is done, writing one reply
// line per command to w.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		reply := b.Handle(scanner.Text())
		if reply == "" {
			continue
		}
		if _, err := out.WriteString(reply + "\n"); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
		if err := out.Flush(); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return nil
}

// FormatResponse encodes a dispatcher result as a reply line.
func FormatResponse(command string, result any, err error) string {
	reply := []any{"ok", command}
	if err != nil {
		reply = []any{"error", command, err.Error()}
	} else if result != nil {
		reply = append(reply, result)
	}

	data, mErr := json.Marshal(reply)
	if mErr != nil {
		data, _ = json.Marshal([]any{"error", command, fmt.Sprintf("encode result: %v", mErr)})
	}
	return string(data)
}
