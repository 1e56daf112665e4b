package convert

import (
	"encoding/json"
	"time"

	"github.com/heatbox/extension/internal/model"
	"github.com/heatbox/extension/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToCenter converts a PostGIS geom.Point back to x, y, z.
func pointToCenter(p geom.Point) (x, y, z float64) {
	coord, ok := p.Coordinates()
	if !ok {
		return 0, 0, 0
	}
	return coord.XY.X, coord.XY.Y, coord.Z
}

// polygonToHull returns the exterior ring without its closing point.
func polygonToHull(p geom.Polygon) [][2]float64 {
	if p.IsEmpty() {
		return nil
	}
	seq := p.ExteriorRing().Coordinates()
	n := seq.Length() - 1
	if n < 3 {
		return nil
	}
	hull := make([][2]float64, n)
	for i := 0; i < n; i++ {
		pt := seq.GetXY(i)
		hull[i] = [2]float64{pt.X, pt.Y}
	}
	return hull
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:        s.ID,
		Name:      s.Name,
		StartTime: s.StartTime,
		Dims: core.Dims{
			Depth:  s.GridDepth,
			Width:  s.GridWidth,
			Height: s.GridHeight,
		},
		Spacing:      s.Spacing,
		TransferRate: s.TransferRate,
		Interval:     time.Duration(s.IntervalMs) * time.Millisecond,
	}
}

// TickStatToCore converts a GORM TickStat to a core.TickStat.
func TickStatToCore(t model.TickStat) core.TickStat {
	return core.TickStat{
		Tick:           t.Tick,
		Time:           t.Time,
		Duration:       time.Duration(t.DurationMs * float64(time.Millisecond)),
		BurningCells:   t.BurningCells,
		FlammableCells: t.FlammableCells,
		LiveFires:      t.LiveFires,
		Orphans:        t.Orphans,
		FieldTotal:     t.FieldTotal,
	}
}

// FireEventToCore converts a GORM FireEvent to a core.FireEvent.
func FireEventToCore(e model.FireEvent) core.FireEvent {
	var indices []core.Index
	if len(e.Indices) > 0 {
		_ = json.Unmarshal(e.Indices, &indices)
	}
	x, y, z := pointToCenter(e.Center)

	return core.FireEvent{
		Tick:    e.Tick,
		Time:    e.Time,
		Kind:    core.FireEventKind(e.Kind),
		Body:    core.BodyID(e.Body),
		FireID:  e.FireID,
		Indices: indices,
		CenterX: x,
		CenterY: y,
		CenterZ: z,
		Area:    e.Area,
		Size:    e.Size,
		Hull:    polygonToHull(e.Footprint),
	}
}
