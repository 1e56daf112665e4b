package storage

import "github.com/heatbox/extension/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (StartSession assigns the session ID)
	StartSession(s *core.Session) error
	EndSession(ticks uint64) error

	// Per-tick recording
	RecordTick(t *core.TickStat) error
	RecordBodySample(s *core.BodySample) error

	// Event recording
	RecordFireEvent(e *core.FireEvent) error
	RecordHalfBurnt(e *core.HalfBurntEvent) error
}

// Exporter is an optional interface for backends that write a file
// when a session ends.
type Exporter interface {
	ExportedFilePath() string
}
