package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// MessageWriter is satisfied by *gelf.Writer.
type MessageWriter interface {
	WriteMessage(m *gelf.Message) error
}

// DialGraylog opens a UDP GELF writer to address (host:port).
func DialGraylog(address string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("dial graylog %s: %w", address, err)
	}
	return w, nil
}

// GelfHandler is a slog.Handler that ships records as GELF messages.
type GelfHandler struct {
	w      MessageWriter
	level  slog.Leveler
	host   string
	attrs  []slog.Attr
	prefix string
}

// NewGelfHandler creates a handler writing records at or above level to w.
func NewGelfHandler(w MessageWriter, level slog.Leveler) *GelfHandler {
	host, err := os.Hostname()
	if err != nil {
		host = "heatbox"
	}
	return &GelfHandler{w: w, level: level, host: host}
}

// Enabled reports whether level passes the handler threshold.
func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle converts r into a GELF message.
func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	extra := map[string]interface{}{"_facility": ServiceName}
	for _, a := range h.attrs {
		addExtra(extra, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addExtra(extra, h.prefix, a)
		return true
	})

	short, full := r.Message, ""
	if i := strings.IndexByte(short, '\n'); i >= 0 {
		short, full = short[:i], short
	}

	return h.w.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    short,
		Full:     full,
		TimeUnix: float64(ts.UnixNano()) / float64(time.Second),
		Level:    syslogLevel(r.Level),
		Extra:    extra,
	})
}

// WithAttrs returns a handler that includes attrs on every message.
func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup prefixes subsequent attribute keys with name.
func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "_"
	return &next
}

func addExtra(extra map[string]interface{}, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "_"
		}
		for _, ga := range a.Value.Group() {
			addExtra(extra, p, ga)
		}
		return
	}

	key := "_" + prefix + a.Key
	switch a.Value.Kind() {
	case slog.KindString:
		extra[key] = a.Value.String()
	case slog.KindInt64:
		extra[key] = a.Value.Int64()
	case slog.KindUint64:
		extra[key] = a.Value.Uint64()
	case slog.KindFloat64:
		extra[key] = a.Value.Float64()
	case slog.KindBool:
		extra[key] = a.Value.Bool()
	default:
		extra[key] = a.Value.String()
	}
}

// syslogLevel maps slog levels onto the syslog severities GELF expects.
func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return 3
	case l >= slog.LevelWarn:
		return 4
	case l >= slog.LevelInfo:
		return 6
	default:
		return 7
	}
}
