// Package influx implements the storage.Backend interface by writing
// time-series points to InfluxDB through the non-blocking write API.
package influx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/heatbox/extension/internal/config"
	"github.com/heatbox/extension/pkg/core"
)

// Measurement names.
const (
	MeasurementSession   = "heatbox_session"
	MeasurementTick      = "heatbox_tick"
	MeasurementBody      = "heatbox_body"
	MeasurementFire      = "heatbox_fire"
	MeasurementHalfBurnt = "heatbox_half_burnt"
)

const pingTimeout = 5 * time.Second

// Backend writes records as InfluxDB points.
type Backend struct {
	cfg    config.InfluxConfig
	logger *slog.Logger

	client influxdb2.Client
	writer influxdb2_api.WriteAPI

	mu      sync.RWMutex
	session string
}

// New creates a new InfluxDB storage backend.
func New(cfg config.InfluxConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:    cfg,
		logger: logger.With("component", "influx"),
	}
}

// Init connects, validates the server and creates the write API.
func (b *Backend) Init() error {
	b.client = influxdb2.NewClientWithOptions(
		b.cfg.URL(),
		b.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	// validate client connection health
	running, err := b.client.Ping(ctx)
	if err != nil || !running {
		b.client.Close()
		if err == nil {
			err = fmt.Errorf("server not ready")
		}
		return fmt.Errorf("failed to reach InfluxDB at %s: %w", b.cfg.URL(), err)
	}

	b.writer = b.client.WriteAPI(b.cfg.Org, b.cfg.Bucket)

	errorsCh := b.writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			b.logger.Error("Error sending data to InfluxDB", "error", writeErr, "bucket", b.cfg.Bucket)
		}
	}()

	b.logger.Info("InfluxDB client initialized", "url", b.cfg.URL(), "bucket", b.cfg.Bucket)
	return nil
}

// Close flushes pending points and closes the client.
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	if b.writer != nil {
		b.writer.Flush()
	}
	b.client.Close()
	b.client = nil
	b.writer = nil
	return nil
}

// StartSession tags every following point with the session key.
func (b *Backend) StartSession(s *core.Session) error {
	key := SessionKey(s.Name, s.StartTime)

	b.mu.Lock()
	b.session = key
	b.mu.Unlock()

	return b.write(influxdb2_write.NewPoint(MeasurementSession,
		map[string]string{"session": key},
		map[string]interface{}{
			"event":         "start",
			"depth":         s.Dims.Depth,
			"width":         s.Dims.Width,
			"height":        s.Dims.Height,
			"spacing":       s.Spacing,
			"transfer_rate": s.TransferRate,
			"interval_ms":   s.Interval.Milliseconds(),
		},
		s.StartTime,
	))
}

// EndSession writes the closing point and flushes.
func (b *Backend) EndSession(ticks uint64) error {
	key := b.currentSession()
	err := b.write(influxdb2_write.NewPoint(MeasurementSession,
		map[string]string{"session": key},
		map[string]interface{}{
			"event": "end",
			"ticks": ticks,
		},
		time.Now(),
	))
	if err != nil {
		return err
	}
	b.writer.Flush()

	b.mu.Lock()
	b.session = ""
	b.mu.Unlock()
	return nil
}

func (b *Backend) RecordTick(t *core.TickStat) error {
	return b.write(TickPoint(b.currentSession(), t))
}

func (b *Backend) RecordBodySample(s *core.BodySample) error {
	return b.write(BodyPoint(b.currentSession(), s))
}

func (b *Backend) RecordFireEvent(e *core.FireEvent) error {
	return b.write(FirePoint(b.currentSession(), e))
}

func (b *Backend) RecordHalfBurnt(e *core.HalfBurntEvent) error {
	return b.write(influxdb2_write.NewPoint(MeasurementHalfBurnt,
		map[string]string{"session": b.currentSession(), "body": string(e.Body)},
		map[string]interface{}{"tick": e.Tick, "temperature": e.Temperature},
		e.Time,
	))
}

func (b *Backend) currentSession() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

func (b *Backend) write(point *influxdb2_write.Point) error {
	if b.writer == nil {
		return fmt.Errorf("influxDB client not initialized")
	}
	b.writer.WritePoint(point)
	return nil
}

// SessionKey is the session tag value: name_20060102_150405 with spaces
// replaced.
func SessionKey(name string, start time.Time) string {
	safe := strings.NewReplacer(" ", "_", ",", "_", "=", "_").Replace(name)
	if safe == "" {
		safe = "session"
	}
	return safe + "_" + start.Format("20060102_150405")
}

// TickPoint converts a tick summary to a point.
func TickPoint(session string, t *core.TickStat) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementTick,
		map[string]string{"session": session},
		map[string]interface{}{
			"tick":            t.Tick,
			"duration_ms":     float64(t.Duration.Microseconds()) / 1000,
			"burning_cells":   t.BurningCells,
			"flammable_cells": t.FlammableCells,
			"live_fires":      t.LiveFires,
			"orphans":         t.Orphans,
			"field_total":     t.FieldTotal,
		},
		t.Time,
	)
}

// BodyPoint converts a body sample to a point tagged with the body.
func BodyPoint(session string, s *core.BodySample) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementBody,
		map[string]string{"session": session, "body": string(s.Body)},
		map[string]interface{}{
			"tick":          s.Tick,
			"temperature":   s.Temperature,
			"burning_cells": s.BurningCells,
			"flammable":     s.Flammable,
		},
		s.Time,
	)
}

// FirePoint converts a fire lifecycle event to a point tagged with body and kind.
func FirePoint(session string, e *core.FireEvent) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementFire,
		map[string]string{"session": session, "body": string(e.Body), "kind": string(e.Kind)},
		map[string]interface{}{
			"tick":    e.Tick,
			"fire_id": e.FireID,
			"x":       e.CenterX,
			"y":       e.CenterY,
			"z":       e.CenterZ,
			"size":    e.Size,
			"area":    e.Area,
			"cells":   len(e.Indices),
		},
		e.Time,
	)
}
