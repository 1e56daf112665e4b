// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"

	"github.com/heatbox/extension/internal/model"
	"github.com/heatbox/extension/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// centerToPoint converts a fire center to a PostGIS geom.Point
func centerToPoint(x, y, z float64) geom.Point {
	coords := geom.Coordinates{XY: geom.XY{X: x, Y: y}, Z: z, Type: geom.DimXYZ}
	return geom.NewPoint(coords)
}

// hullToPolygon closes the hull ring and wraps it as a polygon. Hulls with
// fewer than three points have no area and map to an empty polygon.
func hullToPolygon(hull [][2]float64) geom.Polygon {
	if len(hull) < 3 {
		return geom.Polygon{}
	}
	coords := make([]float64, 0, (len(hull)+1)*2)
	for _, p := range hull {
		coords = append(coords, p[0], p[1])
	}
	coords = append(coords, hull[0][0], hull[0][1])
	ring := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	return geom.NewPolygon([]geom.LineString{ring})
}

// indicesToJSON converts a cell index set to datatypes.JSON for DB storage.
func indicesToJSON(indices []core.Index) datatypes.JSON {
	if len(indices) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(indices)
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	cfg, _ := json.Marshal(s)
	return model.Session{
		Name:         s.Name,
		StartTime:    s.StartTime,
		EndTime:      sql.NullTime{},
		GridDepth:    s.Dims.Depth,
		GridWidth:    s.Dims.Width,
		GridHeight:   s.Dims.Height,
		Spacing:      s.Spacing,
		TransferRate: s.TransferRate,
		IntervalMs:   s.Interval.Milliseconds(),
		Config:       datatypes.JSON(cfg),
	}
}

// CoreToTickStat converts a core.TickStat to a GORM model.TickStat.
func CoreToTickStat(t core.TickStat) model.TickStat {
	return model.TickStat{
		Time:           t.Time,
		Tick:           t.Tick,
		DurationMs:     float64(t.Duration.Microseconds()) / 1000,
		BurningCells:   t.BurningCells,
		FlammableCells: t.FlammableCells,
		LiveFires:      t.LiveFires,
		Orphans:        t.Orphans,
		FieldTotal:     t.FieldTotal,
	}
}

// CoreToBodySample converts a core.BodySample to a GORM model.BodySample.
func CoreToBodySample(s core.BodySample) model.BodySample {
	return model.BodySample{
		Time:         s.Time,
		Tick:         s.Tick,
		Body:         string(s.Body),
		Temperature:  s.Temperature,
		BurningCells: s.BurningCells,
		Flammable:    s.Flammable,
	}
}

// CoreToFireEvent converts a core.FireEvent to a GORM model.FireEvent.
func CoreToFireEvent(e core.FireEvent) model.FireEvent {
	return model.FireEvent{
		Time:      e.Time,
		Tick:      e.Tick,
		Kind:      string(e.Kind),
		Body:      string(e.Body),
		FireID:    e.FireID,
		Center:    centerToPoint(e.CenterX, e.CenterY, e.CenterZ),
		Footprint: hullToPolygon(e.Hull),
		Indices:   indicesToJSON(e.Indices),
		Cells:     len(e.Indices),
		Area:      e.Area,
		Size:      e.Size,
	}
}

// CoreToHalfBurnt converts a core.HalfBurntEvent to a GORM model.HalfBurnt.
func CoreToHalfBurnt(e core.HalfBurntEvent) model.HalfBurnt {
	return model.HalfBurnt{
		Time:        e.Time,
		Tick:        e.Tick,
		Body:        string(e.Body),
		Temperature: e.Temperature,
	}
}
