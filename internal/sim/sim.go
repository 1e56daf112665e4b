// Package sim orchestrates the combustion simulation tick by tick.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/cell"
	"github.com/heatbox/extension/internal/combustion"
	"github.com/heatbox/extension/internal/field"
	"github.com/heatbox/extension/internal/lifecycle"
	"github.com/heatbox/extension/pkg/core"
)

var (
	ErrNotRegistered  = errors.New("body is not registered")
	ErrNoCells        = errors.New("body has no flammable or burning cells")
	ErrAlreadyStarted = errors.New("simulation has already begun")
	ErrNotStarted     = errors.New("simulation has not begun")
	ErrNotPlaying     = errors.New("simulation is not playing")
	ErrNotPaused      = errors.New("simulation has not paused")
	ErrOutOfBounds    = errors.New("index out of grid bounds")
	ErrInvalidConfig  = errors.New("invalid simulation config")
)

// Stage is the run state of the simulation.
type Stage uint32

const (
	StageNone Stage = iota
	StagePlaying
	StagePaused
)

func (s Stage) String() string {
	switch s {
	case StagePlaying:
		return "playing"
	case StagePaused:
		return "paused"
	}
	return "none"
}

// Config is fixed for the lifetime of a Simulation.
type Config struct {
	// Name labels recorded sessions.
	Name         string
	Dims         core.Dims
	Spacing      float64
	Origin       mgl64.Vec3
	TransferRate float64
	Interval     time.Duration
	Quota        combustion.Quota
}

// DefaultConfig returns an 8x8x4 grid of 100-unit cells ticking every second.
func DefaultConfig() Config {
	return Config{
		Dims:         core.Dims{Depth: 8, Width: 8, Height: 4},
		Spacing:      100,
		TransferRate: 0.16,
		Interval:     time.Second,
		Quota:        combustion.DefaultQuota(),
	}
}

// Validate rejects configurations the solver cannot run.
func (c Config) Validate() error {
	switch {
	case !c.Dims.Valid():
		return fmt.Errorf("%w: grid dimensions must be positive, got %+v", ErrInvalidConfig, c.Dims)
	case c.TransferRate < 0 || c.TransferRate > 1:
		return fmt.Errorf("%w: transfer rate %v outside [0,1]", ErrInvalidConfig, c.TransferRate)
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	case c.Spacing <= 0:
		return fmt.Errorf("%w: spacing must be positive", ErrInvalidConfig)
	}
	return nil
}

// Dependencies are the host collaborators. Any of them may be nil.
type Dependencies struct {
	Sampler  combustion.Sampler
	Spawner  lifecycle.Spawner
	Tagger   combustion.Tagger
	Listener Listener
	Logger   *slog.Logger
}

// Simulation owns the field, the cell registry and the fire tracker. It is
// not safe for concurrent use; drive it from a single goroutine (see Clock).
type Simulation struct {
	cfg    Config
	stage  atomic.Uint32
	tick   atomic.Uint64
	field  *field.Field
	reg    *cell.Registry
	fsm    *combustion.Machine
	fires  *lifecycle.Tracker
	runner *Runner

	tagger   combustion.Tagger
	listener Listener
	logger   *slog.Logger
	metrics  *metrics
	now      func() time.Time

	report  TickReport
	started time.Time
}

// TickReport summarizes one tick.
type TickReport struct {
	Tick        uint64
	Transitions []combustion.Transition
	GaveUp      []combustion.Transition
	Spawned     []*lifecycle.Fire
	Orphaned    []*lifecycle.Fire
	Retired     []*lifecycle.Fire
	HalfBurnt   []core.BodyID
	Duration    time.Duration
	// Interrupted is set when an input command left the stage changed.
	Interrupted bool
}

// New builds a simulation in StageNone.
func New(cfg Config, deps Dependencies) (*Simulation, error) {
	if cfg.Quota == (combustion.Quota{}) {
		cfg.Quota = combustion.DefaultQuota()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Listener == nil {
		deps.Listener = NopListener{}
	}

	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	reg := cell.NewRegistry()
	s := &Simulation{
		cfg:   cfg,
		field: field.New(cfg.Dims),
		reg:   reg,
		fsm: combustion.New(combustion.Dependencies{
			Registry: reg,
			Sampler:  deps.Sampler,
			Tagger:   deps.Tagger,
			Quota:    cfg.Quota,
			Logger:   deps.Logger,
		}),
		fires:    lifecycle.New(reg, deps.Spawner, deps.Logger),
		runner:   NewRunner(),
		tagger:   deps.Tagger,
		listener: deps.Listener,
		logger:   deps.Logger,
		metrics:  m,
		now:      time.Now,
	}

	s.runner.Register(SystemFunc{At: PhasePreUpdate, Fn: s.preUpdate})
	s.runner.Register(SystemFunc{At: PhaseUpdate, Fn: s.update})
	s.runner.Register(SystemFunc{At: PhasePostUpdate, Fn: s.postUpdate})
	s.runner.Register(SystemFunc{At: PhaseOutput, Fn: s.output})
	return s, nil
}

// AddSystem schedules extra per-tick work, e.g. host input or cleanup.
func (s *Simulation) AddSystem(sys System) {
	s.runner.Register(sys)
}

// Config returns the simulation configuration.
func (s *Simulation) Config() Config {
	return s.cfg
}

// Stage returns the current run stage. Safe for concurrent use.
func (s *Simulation) Stage() Stage {
	return Stage(s.stage.Load())
}

// TickCount returns the number of ticks run since Start. Safe for concurrent use.
func (s *Simulation) TickCount() uint64 {
	return s.tick.Load()
}

// LogAttrs reports the tick and stage for log enrichment. Safe for concurrent use.
func (s *Simulation) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Uint64("tick", s.TickCount()),
		slog.String("stage", s.Stage().String()),
	}
}

// Session describes the current run for recorders.
func (s *Simulation) Session() core.Session {
	return core.Session{
		Name:         s.cfg.Name,
		StartTime:    s.now(),
		Dims:         s.cfg.Dims,
		Spacing:      s.cfg.Spacing,
		TransferRate: s.cfg.TransferRate,
		Interval:     s.cfg.Interval,
	}
}

// Start begins a run.
func (s *Simulation) Start() error {
	if s.Stage() != StageNone {
		return ErrAlreadyStarted
	}
	s.tick.Store(0)
	s.stage.Store(uint32(StagePlaying))
	s.listener.SessionStarted(s.Session())
	s.logger.Info("Simulation started", "dims", s.cfg.Dims, "interval", s.cfg.Interval)
	return nil
}

// Pause stops ticking and pauses every fire visual.
func (s *Simulation) Pause() error {
	if s.Stage() != StagePlaying {
		return ErrNotPlaying
	}
	s.fires.Pause()
	s.stage.Store(uint32(StagePaused))
	s.logger.Info("Simulation paused")
	return nil
}

// Resume continues a paused run.
func (s *Simulation) Resume() error {
	if s.Stage() != StagePaused {
		return ErrNotPaused
	}
	s.fires.Resume()
	s.stage.Store(uint32(StagePlaying))
	s.logger.Info("Simulation resumed")
	return nil
}

// End stops the run, zeroes the field and tears down every fire. Cell state
// and registrations are kept.
func (s *Simulation) End() error {
	if s.Stage() == StageNone {
		return ErrNotStarted
	}
	s.field.Reset()
	tick := s.TickCount()
	for _, f := range s.fires.Reset() {
		if f.Visual != nil && !f.Visual.IsPending() {
			f.Visual.RequestShrinkToDeath()
		}
		s.listener.FireChanged(fireEvent(core.FireRetired, tick, s.now(), f))
	}
	s.stage.Store(uint32(StageNone))
	s.listener.SessionEnded(tick)
	s.logger.Info("Simulation ended", "ticks", tick)
	return nil
}

// Tick runs input, then one full pre-update, update, post-update pass
// regardless of stage. When an input command changes the stage, e.g. End or
// Pause, the rest of the tick is skipped and the tick is not counted.
func (s *Simulation) Tick() TickReport {
	s.started = s.now()
	s.report = TickReport{}

	stage := s.Stage()
	s.runner.TickPhase(PhaseInput, s.cfg.Interval)
	if s.Stage() != stage {
		s.report.Tick = s.TickCount()
		s.report.Interrupted = true
		return s.report
	}

	s.report.Tick = s.tick.Add(1)
	s.runner.TickFrom(PhasePreUpdate, s.cfg.Interval)

	s.report.Duration = s.now().Sub(s.started)
	return s.report
}

// CellCenter returns the world position of the center of idx.
func (s *Simulation) CellCenter(idx core.Index) mgl64.Vec3 {
	half := s.cfg.Spacing / 2
	return s.cfg.Origin.Add(mgl64.Vec3{
		float64(idx.D)*s.cfg.Spacing + half,
		float64(idx.W)*s.cfg.Spacing + half,
		float64(idx.H)*s.cfg.Spacing + half,
	})
}
