package sim

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/cell"
	"github.com/heatbox/extension/internal/combustion"
	"github.com/heatbox/extension/internal/geometry"
	"github.com/heatbox/extension/internal/lifecycle"
	"github.com/heatbox/extension/internal/region"
	"github.com/heatbox/extension/pkg/core"
)

func (s *Simulation) preUpdate(time.Duration) {
	res := s.fsm.PreUpdate()
	s.report.Transitions = res.Transitions
	s.report.GaveUp = res.GaveUp
}

func (s *Simulation) update(dt time.Duration) {
	for _, r := range region.AggregateAll(s.reg) {
		samples := r.Samples
		if len(samples) == 0 {
			samples = []mgl64.Vec3{s.CellCenter(r.Indices[0])}
		}
		est := geometry.Compute(samples)
		s.fires.Observe(lifecycle.Observation{Region: r, Estimate: est})

		center := est.Position()
		for _, idx := range r.Indices {
			st, ok := s.reg.State(r.Body, idx)
			if !ok {
				continue
			}
			st.RadiationArea = est.Area
			st.IgnitionCore = center
			s.field.Accumulate(idx, st.RadiateHeat())
		}
	}

	changes := s.fires.Commit()
	s.report.Spawned = changes.Spawned
	s.report.Orphaned = changes.Orphaned
	s.report.Retired = changes.Retired

	s.field.Commit()
	s.field.Diffuse(s.cfg.TransferRate)

	seconds := dt.Seconds()
	for _, body := range s.reg.Bodies() {
		s.reg.EachActive(body, func(idx core.Index, st *cell.State) {
			st.ReceiveHeat(s.field.At(idx), seconds)
		})
	}
}

func (s *Simulation) postUpdate(time.Duration) {
	for _, body := range s.reg.Bodies() {
		for _, idx := range s.reg.Burning(body).Items() {
			st, ok := s.reg.State(body, idx)
			if !ok {
				continue
			}
			st.Visited = false
			st.Fuel--
			s.field.Zero(idx)
		}
	}

	s.fires.Smooth()

	for _, body := range s.reg.Bodies() {
		active := s.reg.Active(body)
		if len(active) == 0 {
			continue
		}
		if meanTemperature(active) >= active[0].MaxTemperature/2 {
			s.report.HalfBurnt = append(s.report.HalfBurnt, body)
		}
	}
}

func (s *Simulation) output(time.Duration) {
	now := s.now()
	tick := s.report.Tick
	ctx := context.Background()

	stat := core.TickStat{
		Tick:       tick,
		Time:       now,
		Duration:   now.Sub(s.started),
		LiveFires:  s.fires.Live(),
		Orphans:    s.fires.Orphans(),
		FieldTotal: s.field.Total(),
	}
	bodies := make([]core.BodySample, 0, len(s.reg.Bodies()))
	for _, body := range s.reg.Bodies() {
		b := core.BodySample{
			Tick:         tick,
			Time:         now,
			Body:         body,
			Temperature:  meanTemperature(s.reg.Active(body)),
			BurningCells: s.reg.Burning(body).Len(),
			Flammable:    s.reg.Flammable(body).Len(),
		}
		stat.BurningCells += b.BurningCells
		stat.FlammableCells += b.Flammable
		bodies = append(bodies, b)
	}

	for _, f := range s.report.Spawned {
		s.listener.FireChanged(fireEvent(core.FireSpawned, tick, now, f))
	}
	for _, f := range s.report.Orphaned {
		s.listener.FireChanged(fireEvent(core.FireOrphaned, tick, now, f))
	}
	for _, f := range s.report.Retired {
		s.listener.FireChanged(fireEvent(core.FireRetired, tick, now, f))
	}
	for _, body := range s.report.HalfBurnt {
		s.listener.BodyHalfBurnt(core.HalfBurntEvent{
			Tick:        tick,
			Time:        now,
			Body:        body,
			Temperature: meanTemperature(s.reg.Active(body)),
		})
	}
	s.listener.TickCompleted(stat, bodies)

	var burningDelta int64
	for _, tr := range s.report.Transitions {
		switch {
		case tr.To == combustion.Burning:
			burningDelta++
		case tr.From == combustion.Burning:
			burningDelta--
		}
	}
	burningDelta -= int64(len(s.report.GaveUp))

	s.metrics.ticks.Add(ctx, 1)
	s.metrics.spawned.Add(ctx, int64(len(s.report.Spawned)))
	s.metrics.orphaned.Add(ctx, int64(len(s.report.Orphaned)))
	s.metrics.gaveUp.Add(ctx, int64(len(s.report.GaveUp)))
	s.metrics.burning.Add(ctx, burningDelta)
	s.metrics.tickDuration.Record(ctx, float64(now.Sub(s.started).Microseconds())/1000)
}

func fireEvent(kind core.FireEventKind, tick uint64, now time.Time, f *lifecycle.Fire) core.FireEvent {
	ev := core.FireEvent{
		Tick:    tick,
		Time:    now,
		Kind:    kind,
		Body:    f.Body,
		FireID:  f.ID,
		Indices: f.Indices,
		CenterX: f.SpawnCenter.X(),
		CenterY: f.SpawnCenter.Y(),
		CenterZ: f.SpawnCenter.Z(),
		Area:    f.Estimate.Area,
		Size:    f.SpawnSize.X(),
	}
	for _, p := range f.Estimate.Hull {
		ev.Hull = append(ev.Hull, [2]float64{p.X(), p.Y()})
	}
	return ev
}
