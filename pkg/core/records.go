package core

import "time"

// Session describes one recorded simulation run.
type Session struct {
	ID           uint          `json:"id"`
	Name         string        `json:"name"`
	StartTime    time.Time     `json:"startTime"`
	Dims         Dims          `json:"dims"`
	Spacing      float64       `json:"spacing"`
	TransferRate float64       `json:"transferRate"`
	Interval     time.Duration `json:"interval"`
}

// TickStat summarizes one completed tick.
type TickStat struct {
	Tick           uint64        `json:"tick"`
	Time           time.Time     `json:"time"`
	Duration       time.Duration `json:"duration"`
	BurningCells   int           `json:"burningCells"`
	FlammableCells int           `json:"flammableCells"`
	LiveFires      int           `json:"liveFires"`
	Orphans        int           `json:"orphans"`
	FieldTotal     float64       `json:"fieldTotal"`
}

// BodySample is a body's aggregate state at the end of a tick.
type BodySample struct {
	Tick         uint64    `json:"tick"`
	Time         time.Time `json:"time"`
	Body         BodyID    `json:"body"`
	Temperature  float64   `json:"temperature"`
	BurningCells int       `json:"burningCells"`
	Flammable    int       `json:"flammable"`
}

// FireEventKind distinguishes fire lifecycle transitions.
type FireEventKind string

const (
	FireSpawned  FireEventKind = "spawned"
	FireOrphaned FireEventKind = "orphaned"
	FireRetired  FireEventKind = "retired"
)

// FireEvent records a fire region lifecycle transition.
type FireEvent struct {
	Tick    uint64        `json:"tick"`
	Time    time.Time     `json:"time"`
	Kind    FireEventKind `json:"kind"`
	Body    BodyID        `json:"body"`
	FireID  uint64        `json:"fireId"`
	Indices []Index       `json:"indices"`
	CenterX float64       `json:"centerX"`
	CenterY float64       `json:"centerY"`
	CenterZ float64       `json:"centerZ"`
	Area    float64       `json:"area"`
	Size    float64       `json:"size"`
	Hull    [][2]float64  `json:"hull,omitempty"`
}

// HalfBurntEvent is emitted while a body's mean temperature is at least half its maximum.
type HalfBurntEvent struct {
	Tick        uint64    `json:"tick"`
	Time        time.Time `json:"time"`
	Body        BodyID    `json:"body"`
	Temperature float64   `json:"temperature"`
}
