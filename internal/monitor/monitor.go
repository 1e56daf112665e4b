// Package monitor writes a periodic status file while a session records.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/heatbox/extension/internal/model"
	"github.com/heatbox/extension/internal/recorder"
	"github.com/heatbox/extension/internal/session"
)

// DefaultInterval is how often the status file is rewritten.
const DefaultInterval = time.Second

// StatusFileName is created inside Dependencies.Dir.
const StatusFileName = "status.json"

// StatsSource reports recorder progress.
type StatsSource interface {
	Stats() recorder.Stats
}

// QueueSource reports backend write queues.
type QueueSource interface {
	QueueLengths() model.WriteQueueLengths
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Session  *session.Context
	Recorder StatsSource
	Queues   QueueSource // optional
	Dir      string
	Interval time.Duration
	Logger   *slog.Logger
}

// Status is the content of the status file.
type Status struct {
	Time              time.Time                `json:"time"`
	Session           string                   `json:"session"`
	SessionID         uint                     `json:"sessionId"`
	Recording         bool                     `json:"recording"`
	Ticks             uint64                   `json:"ticks"`
	LastTick          time.Time                `json:"lastTick"`
	CompletedSessions int                      `json:"completedSessions"`
	Pending           int                      `json:"pending"`
	Written           uint64                   `json:"written"`
	Failed            uint64                   `json:"failed"`
	LastWriteMs       float64                  `json:"lastWriteMs"`
	WriteQueues       *model.WriteQueueLengths `json:"writeQueues,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Path is the status file location.
func (s *Service) Path() string {
	return filepath.Join(s.deps.Dir, StatusFileName)
}

// GetStatus collects the current status.
func (s *Service) GetStatus() Status {
	st := Status{Time: time.Now()}

	if s.deps.Session != nil {
		sess, active := s.deps.Session.Get()
		st.Session = sess.Name
		st.SessionID = sess.ID
		st.Recording = active
		st.Ticks, st.LastTick = s.deps.Session.Ticks()
		st.CompletedSessions = s.deps.Session.Completed()
	}
	if s.deps.Recorder != nil {
		rs := s.deps.Recorder.Stats()
		st.Pending = rs.Pending
		st.Written = rs.Written
		st.Failed = rs.Failed
		st.LastWriteMs = float64(rs.LastWrite.Microseconds()) / 1000
	}
	if s.deps.Queues != nil {
		q := s.deps.Queues.QueueLengths()
		st.WriteQueues = &q
	}
	return st
}

// WriteStatus replaces the status file with the current status.
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := os.MkdirAll(s.deps.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return os.Rename(tmp, s.Path())
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		logger := s.deps.Logger.With("component", "monitor")
		logger.Debug("Starting status monitor", "path", s.Path(), "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if s.deps.Session != nil {
					if _, active := s.deps.Session.Get(); !active {
						continue
					}
				}
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
