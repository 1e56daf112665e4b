package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/heatbox/extension/internal/config"
	"github.com/heatbox/extension/pkg/core"
)

// ErrNoSession is returned by EndSession when no session was started.
var ErrNoSession = errors.New("no session started")

// BodyRecord groups a body with all its time-series data
type BodyRecord struct {
	Body      core.BodyID
	Samples   []core.BodySample
	HalfBurnt []core.HalfBurntEvent
}

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session
	endTime time.Time
	ticks   uint64

	bodies     map[core.BodyID]*BodyRecord
	tickStats  []core.TickStat
	fireEvents []core.FireEvent

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:    cfg,
		bodies: make(map[core.BodyID]*BodyRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	session := *s
	b.session = &session

	// Reset all collections
	b.bodies = make(map[core.BodyID]*BodyRecord)
	b.tickStats = nil
	b.fireEvents = nil
	b.ticks = 0
	b.endTime = time.Time{}

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession(ticks uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.ticks = ticks
	b.endTime = time.Now()
	return b.exportJSON()
}

// RecordTick stores a tick summary
func (b *Backend) RecordTick(t *core.TickStat) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tickStats = append(b.tickStats, *t)
	return nil
}

// RecordBodySample appends a sample to the body's record
func (b *Backend) RecordBodySample(s *core.BodySample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record := b.body(s.Body)
	record.Samples = append(record.Samples, *s)
	return nil
}

// RecordFireEvent stores a fire lifecycle event
func (b *Backend) RecordFireEvent(e *core.FireEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fireEvents = append(b.fireEvents, *e)
	return nil
}

// RecordHalfBurnt appends a half-burnt marker to the body's record
func (b *Backend) RecordHalfBurnt(e *core.HalfBurntEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record := b.body(e.Body)
	record.HalfBurnt = append(record.HalfBurnt, *e)
	return nil
}

// body returns the record for id, creating it. Caller holds mu.
func (b *Backend) body(id core.BodyID) *BodyRecord {
	record, ok := b.bodies[id]
	if !ok {
		record = &BodyRecord{Body: id}
		b.bodies[id] = record
	}
	return record
}

// ExportedFilePath returns the path of the last exported file
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetSession returns the current session (for testing)
func (b *Backend) GetSession() *core.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// GetBody returns a copy of a body record (for testing)
func (b *Backend) GetBody(id core.BodyID) (BodyRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	record, ok := b.bodies[id]
	if !ok {
		return BodyRecord{}, false
	}
	return *record, true
}
