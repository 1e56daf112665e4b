package sim

import "github.com/heatbox/extension/pkg/core"

// Listener receives one-way notifications from the simulation goroutine.
// Implementations must not block.
type Listener interface {
	SessionStarted(s core.Session)
	SessionEnded(ticks uint64)
	TickCompleted(stat core.TickStat, bodies []core.BodySample)
	FireChanged(ev core.FireEvent)
	BodyHalfBurnt(ev core.HalfBurntEvent)
}

// NopListener ignores every notification.
type NopListener struct{}

func (NopListener) SessionStarted(core.Session) {}
func (NopListener) SessionEnded(uint64) {}
func (NopListener) TickCompleted(core.TickStat, []core.BodySample) {}
func (NopListener) FireChanged(core.FireEvent) {}
func (NopListener) BodyHalfBurnt(core.HalfBurntEvent) {}

// Listeners fans notifications out in order.
type Listeners []Listener

func (ls Listeners) SessionStarted(s core.Session) {
	for _, l := range ls {
		l.SessionStarted(s)
	}
}

func (ls Listeners) SessionEnded(ticks uint64) {
	for _, l := range ls {
		l.SessionEnded(ticks)
	}
}

func (ls Listeners) TickCompleted(stat core.TickStat, bodies []core.BodySample) {
	for _, l := range ls {
		l.TickCompleted(stat, bodies)
	}
}

func (ls Listeners) FireChanged(ev core.FireEvent) {
	for _, l := range ls {
		l.FireChanged(ev)
	}
}

func (ls Listeners) BodyHalfBurnt(ev core.HalfBurntEvent) {
	for _, l := range ls {
		l.BodyHalfBurnt(ev)
	}
}
