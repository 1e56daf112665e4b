package memory

import (
	"cmp"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// SessionExport is the root JSON structure
type SessionExport struct {
	SessionName  string     `json:"sessionName"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      time.Time  `json:"endTime"`
	EndTick      uint64     `json:"endTick"`
	IntervalMs   int64      `json:"intervalMs"`
	Grid         [3]int     `json:"grid"` // depth, width, height
	Spacing      float64    `json:"spacing"`
	TransferRate float64    `json:"transferRate"`
	Bodies       []BodyJSON `json:"bodies"`
	TickStats    [][]any    `json:"tickStats"`
	Events       [][]any    `json:"events"`
}

// BodyJSON represents one body and its per-tick samples
type BodyJSON struct {
	ID             string   `json:"id"`
	Samples        [][]any  `json:"samples"`
	HalfBurntTicks []uint64 `json:"halfBurntTicks"`
}

// exportJSON writes the session data to a (optionally gzipped) JSON file.
// Caller holds mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	sessionName := strings.ReplaceAll(b.session.Name, " ", "_")
	sessionName = strings.ReplaceAll(sessionName, ":", "_")
	if sessionName == "" {
		sessionName = "session"
	}
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", sessionName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", sessionName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	s := b.session
	export := SessionExport{
		SessionName:  s.Name,
		StartTime:    s.StartTime,
		EndTime:      b.endTime,
		EndTick:      b.ticks,
		IntervalMs:   s.Interval.Milliseconds(),
		Grid:         [3]int{s.Dims.Depth, s.Dims.Width, s.Dims.Height},
		Spacing:      s.Spacing,
		TransferRate: s.TransferRate,
		Bodies:       make([]BodyJSON, 0, len(b.bodies)),
		TickStats:    make([][]any, 0, len(b.tickStats)),
		Events:       make([][]any, 0, len(b.fireEvents)),
	}

	// Convert bodies
	// Sample format: [tick, temperature, burningCells, flammableCells]
	for _, record := range b.bodies {
		body := BodyJSON{
			ID:             string(record.Body),
			Samples:        make([][]any, 0, len(record.Samples)),
			HalfBurntTicks: make([]uint64, 0, len(record.HalfBurnt)),
		}
		for _, sample := range record.Samples {
			body.Samples = append(body.Samples, []any{
				sample.Tick,
				sample.Temperature,
				sample.BurningCells,
				sample.Flammable,
			})
		}
		for _, hb := range record.HalfBurnt {
			body.HalfBurntTicks = append(body.HalfBurntTicks, hb.Tick)
		}
		export.Bodies = append(export.Bodies, body)
	}
	slices.SortFunc(export.Bodies, func(a, b BodyJSON) int {
		return cmp.Compare(a.ID, b.ID)
	})

	// Convert tick stats
	// Format: [tick, burningCells, flammableCells, liveFires, orphans, fieldTotal]
	for _, ts := range b.tickStats {
		export.TickStats = append(export.TickStats, []any{
			ts.Tick,
			ts.BurningCells,
			ts.FlammableCells,
			ts.LiveFires,
			ts.Orphans,
			ts.FieldTotal,
		})
	}

	// Convert fire events
	// Format: [tick, kind, bodyId, fireId, [x, y, z], size, cells]
	for _, evt := range b.fireEvents {
		export.Events = append(export.Events, []any{
			evt.Tick,
			string(evt.Kind),
			string(evt.Body),
			evt.FireID,
			[]float64{evt.CenterX, evt.CenterY, evt.CenterZ},
			evt.Size,
			len(evt.Indices),
		})
	}

	return export
}

func (b *Backend) writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
