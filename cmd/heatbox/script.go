package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/heatbox/extension/internal/dispatcher"
	"github.com/heatbox/extension/internal/queue"
	"github.com/heatbox/extension/internal/scenario"
	"github.com/heatbox/extension/internal/sim"
	"github.com/heatbox/extension/pkg/core"
)

// scriptRunner replays scenario steps. Steps for tick 0 run before the first
// tick; later steps run once the named tick has completed, so their effect
// shows on the following tick. Dispatching happens off the simulation
// goroutine because handlers wait on it.
type scriptRunner struct {
	sim.NopListener

	steps  []scenario.Step
	d      hostDispatcher
	ticks  *queue.Queue[uint64]
	ended  chan struct{}
	logger *slog.Logger
}

type hostDispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

func newScriptRunner(steps []scenario.Step, d hostDispatcher, logger *slog.Logger) *scriptRunner {
	return &scriptRunner{
		steps:  steps,
		d:      d,
		ticks:  queue.New[uint64](),
		ended:  make(chan struct{}, 1),
		logger: logger.With("component", "script"),
	}
}

func (r *scriptRunner) TickCompleted(stat core.TickStat, _ []core.BodySample) {
	r.ticks.Push(stat.Tick)
}

func (r *scriptRunner) SessionEnded(uint64) {
	select {
	case r.ended <- struct{}{}:
	default:
	}
}

// Ended fires after a session ends.
func (r *scriptRunner) Ended() <-chan struct{} {
	return r.ended
}

// Run dispatches due steps until ctx is done.
func (r *scriptRunner) Run(ctx context.Context) {
	next := r.runDue(0, 0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ticks.Ready():
			for _, tick := range r.ticks.Drain() {
				next = r.runDue(next, tick)
			}
		}
	}
}

// runDue dispatches steps from index next whose tick is at most tick and
// returns the index of the first step still waiting.
func (r *scriptRunner) runDue(next int, tick uint64) int {
	for next < len(r.steps) && r.steps[next].Tick <= tick {
		step := r.steps[next]
		next++
		_, err := r.d.Dispatch(dispatcher.Event{Command: step.Command, Args: step.Args, Timestamp: time.Now()})
		if err != nil {
			r.logger.Warn("Script step failed", "tick", step.Tick, "command", step.Command, "error", err)
			continue
		}
		r.logger.Debug("Script step", "tick", step.Tick, "command", step.Command)
	}
	return next
}
