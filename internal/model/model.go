package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&HeatboxInfo{},
	&Session{},
	&TickStat{},
	&BodySample{},
	&FireEvent{},
	&HalfBurnt{},
}

// HeatboxInfo is a single-row table identifying the writer of a database
type HeatboxInfo struct {
	gorm.Model
	Name             string `json:"name" gorm:"size:64"`
	ExtensionVersion string `json:"extensionVersion" gorm:"size:64"`
	SchemaVersion    uint   `json:"schemaVersion"`
}

func (*HeatboxInfo) TableName() string {
	return "heatbox_infos"
}

// WriteQueueLengths is the model for the write queue lengths
type WriteQueueLengths struct {
	Ticks       uint32 `json:"ticks"`
	BodySamples uint32 `json:"bodySamples"`
	FireEvents  uint32 `json:"fireEvents"`
	HalfBurnt   uint32 `json:"halfBurnt"`
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Session is one recorded simulation run
type Session struct {
	gorm.Model
	Name          string         `json:"name" gorm:"size:200"`
	StartTime     time.Time      `json:"startTime" gorm:"index:idx_session_start"`
	EndTime       sql.NullTime   `json:"endTime"`
	Ticks         uint64         `json:"ticks"`
	GridDepth     int            `json:"gridDepth"`
	GridWidth     int            `json:"gridWidth"`
	GridHeight    int            `json:"gridHeight"`
	Spacing       float64        `json:"spacing"`
	TransferRate  float64        `json:"transferRate"`
	IntervalMs    int64          `json:"intervalMs"`
	Config        datatypes.JSON `json:"config"`
	TickStats     []TickStat
	BodySamples   []BodySample
	FireEvents    []FireEvent
	HalfBurntLogs []HalfBurnt
}

func (*Session) TableName() string {
	return "sessions"
}

// TickStat summarizes one completed tick
type TickStat struct {
	ID             uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time           time.Time `json:"time"`
	SessionID      uint      `json:"sessionId" gorm:"index:idx_tickstat_session_id"`
	Session        Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick           uint64    `json:"tick" gorm:"index:idx_tickstat_tick"`
	DurationMs     float64   `json:"durationMs"`
	BurningCells   int       `json:"burningCells"`
	FlammableCells int       `json:"flammableCells"`
	LiveFires      int       `json:"liveFires"`
	Orphans        int       `json:"orphans"`
	FieldTotal     float64   `json:"fieldTotal"`
}

func (*TickStat) TableName() string {
	return "tick_stats"
}

// BodySample is a body's aggregate state at the end of a tick
type BodySample struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time"`
	SessionID    uint      `json:"sessionId" gorm:"index:idx_bodysample_session_id"`
	Session      Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick         uint64    `json:"tick" gorm:"index:idx_bodysample_tick"`
	Body         string    `json:"body" gorm:"size:128;index:idx_bodysample_body"`
	Temperature  float64   `json:"temperature"`
	BurningCells int       `json:"burningCells"`
	Flammable    int       `json:"flammable"`
}

func (*BodySample) TableName() string {
	return "body_samples"
}

// FireEvent records a fire region spawn, orphaning or retirement
type FireEvent struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time      `json:"time"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_fireevent_session_id"`
	Session   Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64         `json:"tick"`
	Kind      string         `json:"kind" gorm:"size:16"`
	Body      string         `json:"body" gorm:"size:128;index:idx_fireevent_body"`
	FireID    uint64         `json:"fireId" gorm:"index:idx_fireevent_fire_id"`
	Center    geom.Point     `json:"center"`    // Spawn location, world units
	Footprint geom.Polygon   `json:"footprint"` // Convex hull in the XY plane, empty below three points
	Indices   datatypes.JSON `json:"indices"`   // Member cells as [{d,w,h}]
	Cells     int            `json:"cells"`
	Area      float64        `json:"area"`
	Size      float64        `json:"size"`
}

func (*FireEvent) TableName() string {
	return "fire_events"
}

// HalfBurnt marks a tick where a body's mean temperature was at least half its maximum
type HalfBurnt struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time        time.Time `json:"time"`
	SessionID   uint      `json:"sessionId" gorm:"index:idx_halfburnt_session_id"`
	Session     Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick        uint64    `json:"tick"`
	Body        string    `json:"body" gorm:"size:128"`
	Temperature float64   `json:"temperature"`
}

func (*HalfBurnt) TableName() string {
	return "half_burnt"
}
