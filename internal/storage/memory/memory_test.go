package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/heatbox/extension/internal/config"
	"github.com/heatbox/extension/pkg/core"
)

func testSession(name string) *core.Session {
	return &core.Session{
		Name:         name,
		StartTime:    time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC),
		Dims:         core.Dims{Depth: 8, Width: 8, Height: 4},
		Spacing:      100,
		TransferRate: 0.16,
		Interval:     time.Second,
	}
}

func TestNew(t *testing.T) {
	cfg := config.MemoryConfig{
		OutputDir:      "/tmp/test",
		CompressOutput: true,
	}
	b := New(cfg)

	if b == nil {
		t.Fatal("New returned nil")
	}
	if b.cfg.OutputDir != "/tmp/test" {
		t.Errorf("expected OutputDir=/tmp/test, got %s", b.cfg.OutputDir)
	}
	if !b.cfg.CompressOutput {
		t.Error("expected CompressOutput=true")
	}
	if b.bodies == nil {
		t.Error("bodies map not initialized")
	}
}

func TestInitAndClose(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.Init(); err != nil {
		t.Errorf("Init failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestStartSessionResetsCollections(t *testing.T) {
	b := New(config.MemoryConfig{})

	// Add some data before starting
	_ = b.RecordBodySample(&core.BodySample{Tick: 1, Body: "old"})
	_ = b.RecordTick(&core.TickStat{Tick: 1})

	s := testSession("Fresh")
	if err := b.StartSession(s); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if s.ID != 1 {
		t.Errorf("expected session ID=1, got %d", s.ID)
	}
	if len(b.bodies) != 0 {
		t.Errorf("expected bodies to be reset, got %d", len(b.bodies))
	}
	if len(b.tickStats) != 0 {
		t.Errorf("expected tick stats to be reset, got %d", len(b.tickStats))
	}
	if b.GetSession().Name != "Fresh" {
		t.Errorf("expected session name Fresh, got %s", b.GetSession().Name)
	}

	// IDs keep counting across sessions
	next := testSession("Second")
	_ = b.StartSession(next)
	if next.ID != 2 {
		t.Errorf("expected session ID=2, got %d", next.ID)
	}
}

func TestStartSessionCopiesSession(t *testing.T) {
	b := New(config.MemoryConfig{})
	s := testSession("Original")
	_ = b.StartSession(s)

	s.Name = "Changed"
	if b.GetSession().Name != "Original" {
		t.Error("backend should keep its own copy of the session")
	}
}

func TestRecordBodySampleGroupsByBody(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(testSession("Bodies"))

	for tick := uint64(1); tick <= 3; tick++ {
		_ = b.RecordBodySample(&core.BodySample{Tick: tick, Body: "crate", Temperature: float64(tick) * 100})
	}
	_ = b.RecordBodySample(&core.BodySample{Tick: 1, Body: "shelf", Temperature: 20})
	_ = b.RecordHalfBurnt(&core.HalfBurntEvent{Tick: 3, Body: "crate", Temperature: 600})

	crate, ok := b.GetBody("crate")
	if !ok {
		t.Fatal("crate not recorded")
	}
	if len(crate.Samples) != 3 {
		t.Errorf("expected 3 crate samples, got %d", len(crate.Samples))
	}
	if crate.Samples[2].Temperature != 300 {
		t.Errorf("expected last temperature 300, got %v", crate.Samples[2].Temperature)
	}
	if len(crate.HalfBurnt) != 1 {
		t.Errorf("expected 1 half burnt event, got %d", len(crate.HalfBurnt))
	}

	shelf, ok := b.GetBody("shelf")
	if !ok || len(shelf.Samples) != 1 {
		t.Errorf("expected 1 shelf sample, got %+v", shelf)
	}

	if _, ok := b.GetBody("missing"); ok {
		t.Error("unexpected record for missing body")
	}
}

func TestRecordFireEventsAndTicks(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(testSession("Events"))

	_ = b.RecordFireEvent(&core.FireEvent{Tick: 2, Kind: core.FireSpawned, Body: "crate", FireID: 1})
	_ = b.RecordFireEvent(&core.FireEvent{Tick: 5, Kind: core.FireOrphaned, Body: "crate", FireID: 1})
	_ = b.RecordTick(&core.TickStat{Tick: 1})
	_ = b.RecordTick(&core.TickStat{Tick: 2})

	if len(b.fireEvents) != 2 {
		t.Errorf("expected 2 fire events, got %d", len(b.fireEvents))
	}
	if len(b.tickStats) != 2 {
		t.Errorf("expected 2 tick stats, got %d", len(b.tickStats))
	}
}

func TestEndSessionWithoutStart(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	if err := b.EndSession(0); err != ErrNoSession {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestConcurrentRecording(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(testSession("Concurrent"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for tick := uint64(0); tick < 100; tick++ {
				_ = b.RecordBodySample(&core.BodySample{Tick: tick, Body: "crate"})
				_ = b.RecordTick(&core.TickStat{Tick: tick})
			}
		}(i)
	}
	wg.Wait()

	crate, _ := b.GetBody("crate")
	if len(crate.Samples) != 1000 {
		t.Errorf("expected 1000 samples, got %d", len(crate.Samples))
	}
	if len(b.tickStats) != 1000 {
		t.Errorf("expected 1000 tick stats, got %d", len(b.tickStats))
	}
}
