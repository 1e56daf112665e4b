package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heatbox/extension/internal/queue"
)

// CommandFunc runs on the simulation goroutine.
type CommandFunc func(*Simulation) (any, error)

// Reply carries the outcome of a command.
type Reply struct {
	Value any
	Err   error
}

type command struct {
	name  string
	fn    CommandFunc
	reply chan Reply
}

// Clock owns the simulation goroutine. Host commands are queued and applied
// between ticks; ticks fire at the configured interval while playing.
type Clock struct {
	sim      *Simulation
	commands *queue.Queue[command]
	logger   *slog.Logger
}

// NewClock wraps sim and schedules command draining in PhaseInput.
func NewClock(sim *Simulation, logger *slog.Logger) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Clock{
		sim:      sim,
		commands: queue.New[command](),
		logger:   logger,
	}
	sim.AddSystem(SystemFunc{At: PhaseInput, Fn: func(time.Duration) { c.drain() }})
	return c
}

// Submit queues fn and returns a channel that receives its reply.
func (c *Clock) Submit(name string, fn CommandFunc) <-chan Reply {
	reply := make(chan Reply, 1)
	c.commands.Push(command{name: name, fn: fn, reply: reply})
	return reply
}

// Do queues fn and waits for its reply.
func (c *Clock) Do(ctx context.Context, name string, fn CommandFunc) (any, error) {
	select {
	case r := <-c.Submit(name, fn):
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", name, ctx.Err())
	}
}

// Pending returns the number of queued commands.
func (c *Clock) Pending() int {
	return c.commands.Len()
}

// Run drives the simulation until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sim.Config().Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain()
			return ctx.Err()
		case <-c.commands.Ready():
			c.drain()
		case <-ticker.C:
			c.Step()
		}
	}
}

// Step applies pending commands, then ticks once if playing.
func (c *Clock) Step() {
	if c.sim.Stage() != StagePlaying {
		c.drain()
		return
	}
	report := c.sim.Tick()
	if report.Interrupted {
		c.logger.Debug("Tick skipped, stage changed by command", "stage", c.sim.Stage())
		return
	}
	if len(report.Spawned) > 0 || len(report.Orphaned) > 0 {
		c.logger.Debug("Tick completed",
			"tick", report.Tick,
			"spawned", len(report.Spawned),
			"orphaned", len(report.Orphaned),
			"duration", report.Duration)
	}
}

func (c *Clock) drain() {
	for _, cmd := range c.commands.Drain() {
		v, err := cmd.fn(c.sim)
		if err != nil {
			c.logger.Warn("Command failed", "command", cmd.name, "error", err)
		}
		cmd.reply <- Reply{Value: v, Err: err}
	}
}
