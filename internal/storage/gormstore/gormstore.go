// Package gormstore implements the storage.Backend interface using GORM with
// internal queues and a background DB writer goroutine. It serves postgres
// and sqlite; an in-memory sqlite database is dumped to disk with VACUUM INTO.
package gormstore

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heatbox/extension/internal/config"
	"github.com/heatbox/extension/internal/database"
	"github.com/heatbox/extension/internal/model"
	"github.com/heatbox/extension/internal/model/convert"
	"github.com/heatbox/extension/internal/queue"
	"github.com/heatbox/extension/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultFlushInterval is how often queued records are written.
const DefaultFlushInterval = 2 * time.Second

// ErrNoSession is returned when recording outside a session.
var ErrNoSession = errors.New("no session started")

// Opener returns a ready database connection.
type Opener func() (*gorm.DB, error)

// Options configures a Backend.
type Options struct {
	Logger        *slog.Logger
	DBLogger      zerolog.Logger
	Version       string
	FlushInterval time.Duration
	// DumpDir and DumpInterval enable periodic VACUUM INTO snapshots.
	DumpDir      string
	DumpInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Ticks       *queue.Queue[model.TickStat]
	BodySamples *queue.Queue[model.BodySample]
	FireEvents  *queue.Queue[model.FireEvent]
	HalfBurnt   *queue.Queue[model.HalfBurnt]
}

func newQueues() *queues {
	return &queues{
		Ticks:       queue.New[model.TickStat](),
		BodySamples: queue.New[model.BodySample](),
		FireEvents:  queue.New[model.FireEvent](),
		HalfBurnt:   queue.New[model.HalfBurnt](),
	}
}

// Backend writes simulation records through GORM.
type Backend struct {
	open   Opener
	opts   Options
	logger *slog.Logger

	db     *gorm.DB
	queues *queues

	sessionID atomic.Uint64
	mu        sync.Mutex
	dumpPath  string

	flushMu  sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

// New creates a backend that connects through open on Init.
func New(open Opener, opts Options) *Backend {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		open:   open,
		opts:   opts,
		logger: opts.Logger.With("component", "gormstore"),
		queues: newQueues(),
	}
}

// NewPostgres creates a postgres-backed store.
func NewPostgres(cfg config.DBConfig, opts Options) *Backend {
	return New(func() (*gorm.DB, error) {
		return database.Postgres(cfg)
	}, opts)
}

// NewSQLite creates a sqlite-backed store. With an empty path the database
// lives in memory and is dumped to cfg.DumpDir every cfg.DumpInterval and at
// the end of each session.
func NewSQLite(cfg config.SQLiteConfig, opts Options) *Backend {
	if cfg.Path == "" {
		opts.DumpDir = cfg.DumpDir
		opts.DumpInterval = cfg.DumpInterval
	}
	return New(func() (*gorm.DB, error) {
		return database.SQLite(cfg.Path)
	}, opts)
}

// Init connects, migrates the schema and starts the writer goroutine.
func (b *Backend) Init() error {
	db, err := b.open()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Setup(db, b.opts.Version, b.opts.DBLogger); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.db = db
	b.stopChan = make(chan struct{})

	b.wg.Add(1)
	go b.writeLoop()

	if b.opts.DumpDir != "" && b.opts.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}
	return nil
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Close stops the background goroutines, flushes and dumps what is left.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed || b.stopChan == nil {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.stopChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.flush()
	b.dump()

	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartSession inserts the session row and assigns its ID to s.
func (b *Backend) StartSession(s *core.Session) error {
	if b.db == nil {
		return fmt.Errorf("start session: database not initialized")
	}
	row := convert.CoreToSession(*s)
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}
	s.ID = row.ID
	b.sessionID.Store(uint64(row.ID))

	if b.opts.DumpDir != "" {
		b.mu.Lock()
		b.dumpPath = filepath.Join(b.opts.DumpDir, dumpFileName(s.Name, s.StartTime))
		b.mu.Unlock()
	}

	b.logger.Info("Session started", "sessionId", row.ID, "name", s.Name)
	return nil
}

// EndSession writes everything queued, stamps the end time and dumps an
// in-memory database.
func (b *Backend) EndSession(ticks uint64) error {
	id := uint(b.sessionID.Swap(0))
	if id == 0 {
		return ErrNoSession
	}
	b.flush()

	err := b.db.Model(&model.Session{}).Where("id = ?", id).Updates(map[string]any{
		"end_time": time.Now(),
		"ticks":    ticks,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	b.dump()
	b.logger.Info("Session ended", "sessionId", id, "ticks", ticks)
	return nil
}

func (b *Backend) currentSession() (uint, error) {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return 0, ErrNoSession
	}
	return id, nil
}

// RecordTick converts a tick summary to GORM and pushes to the write queue.
func (b *Backend) RecordTick(t *core.TickStat) error {
	id, err := b.currentSession()
	if err != nil {
		return err
	}
	row := convert.CoreToTickStat(*t)
	row.SessionID = id
	b.queues.Ticks.Push(row)
	return nil
}

// RecordBodySample converts a body sample to GORM and pushes to the write queue.
func (b *Backend) RecordBodySample(s *core.BodySample) error {
	id, err := b.currentSession()
	if err != nil {
		return err
	}
	row := convert.CoreToBodySample(*s)
	row.SessionID = id
	b.queues.BodySamples.Push(row)
	return nil
}

// RecordFireEvent converts a fire event to GORM and pushes to the write queue.
func (b *Backend) RecordFireEvent(e *core.FireEvent) error {
	id, err := b.currentSession()
	if err != nil {
		return err
	}
	row := convert.CoreToFireEvent(*e)
	row.SessionID = id
	b.queues.FireEvents.Push(row)
	return nil
}

// RecordHalfBurnt converts a half-burnt event to GORM and pushes to the write queue.
func (b *Backend) RecordHalfBurnt(e *core.HalfBurntEvent) error {
	id, err := b.currentSession()
	if err != nil {
		return err
	}
	row := convert.CoreToHalfBurnt(*e)
	row.SessionID = id
	b.queues.HalfBurnt.Push(row)
	return nil
}

// QueueLengths reports the number of records waiting for the writer.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{
		Ticks:       uint32(b.queues.Ticks.Len()),
		BodySamples: uint32(b.queues.BodySamples.Len()),
		FireEvents:  uint32(b.queues.FireEvents.Len()),
		HalfBurnt:   uint32(b.queues.HalfBurnt.Len()),
	}
}

// Sessions lists recorded sessions, newest first.
func (b *Backend) Sessions() ([]core.Session, error) {
	var rows []model.Session
	if err := b.db.Order("id desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]core.Session, len(rows))
	for i, r := range rows {
		out[i] = convert.SessionToCore(r)
	}
	return out, nil
}

// FireEvents returns the fire events of one session in tick order.
func (b *Backend) FireEvents(sessionID uint) ([]core.FireEvent, error) {
	var rows []model.FireEvent
	err := b.db.Where("session_id = ?", sessionID).Order("tick, id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list fire events: %w", err)
	}
	out := make([]core.FireEvent, len(rows))
	for i, r := range rows {
		out[i] = convert.FireEventToCore(r)
	}
	return out, nil
}

// writeQueue writes all items from a queue to the database in a transaction.
// Failed batches go back on the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, logger *slog.Logger) {
	if q.Empty() {
		return
	}

	items := q.Drain()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		logger.Error("Error creating "+name, "error", err, "count", len(items))
		tx.Rollback()
		q.Push(items...)
		return
	}
	if err := tx.Commit().Error; err != nil {
		logger.Error("Error committing "+name, "error", err, "count", len(items))
		q.Push(items...)
	}
}

func (b *Backend) flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	writeQueue(b.db, b.queues.Ticks, "tick stats", b.logger)
	writeQueue(b.db, b.queues.BodySamples, "body samples", b.logger)
	writeQueue(b.db, b.queues.FireEvents, "fire events", b.logger)
	writeQueue(b.db, b.queues.HalfBurnt, "half burnt events", b.logger)
}

// writeLoop periodically drains queues into the DB.
func (b *Backend) writeLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.flush()
		}
	}
}

// dumpLoop periodically snapshots the in-memory database to disk.
// VACUUM INTO creates a point-in-time copy, so writers keep running.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.dump()
		}
	}
}

func (b *Backend) dump() {
	b.mu.Lock()
	path := b.dumpPath
	b.mu.Unlock()
	if path == "" {
		return
	}
	if err := database.DumpToDisk(b.db, path, b.opts.DBLogger); err != nil {
		b.logger.Error("Error dumping to disk", "error", err, "path", path)
	}
}

// ExportedFilePath is the snapshot file of the current or last session.
func (b *Backend) ExportedFilePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dumpPath
}

// dumpFileName builds name_20060102_150405.db with separators made file-safe.
func dumpFileName(name string, start time.Time) string {
	safe := strings.NewReplacer(" ", "_", ":", "_", "/", "_", "\\", "_").Replace(name)
	if safe == "" {
		safe = "session"
	}
	return fmt.Sprintf("%s_%s.db", safe, start.Format("20060102_150405"))
}
