package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseZerologLevel maps a config level name to a zerolog level.
func ParseZerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewZerolog builds the console-format logger used by the database layer and
// the dispatcher. Attributes from ctx, when set, are added to every event.
func NewZerolog(w io.Writer, level string, ctx ContextProvider) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	l := zerolog.New(out).Level(ParseZerologLevel(level)).With().Timestamp().Logger()
	if ctx == nil {
		return l
	}
	return l.Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
		for _, a := range ctx() {
			e.Interface(a.Key, a.Value.Any())
		}
	}))
}
