package scene

import (
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/heatbox/extension/internal/lifecycle"
)

// Burn-out delay bounds for a shrinking blob.
const (
	minBurnOut = 2 * time.Second
	maxBurnOut = 4 * time.Second
)

// FireBlob is the scene's fire visual. Once asked to shrink it counts down a
// random burn-out delay and then marks itself for destruction.
type FireBlob struct {
	ID     uint64
	Center mgl64.Vec3
	Size   mgl64.Vec3

	paused    bool
	pending   bool
	destroyed bool
	delay     time.Duration
	elapsed   time.Duration
}

// SetSize scales the blob on X and Y.
func (b *FireBlob) SetSize(size float64) {
	b.Size = mgl64.Vec3{size, size, 1}
}

func (b *FireBlob) Pause()  { b.paused = true }
func (b *FireBlob) Resume() { b.paused = false }

// RequestShrinkToDeath starts the burn-out countdown.
func (b *FireBlob) RequestShrinkToDeath() {
	b.pending = true
}

func (b *FireBlob) IsPending() bool          { return b.pending }
func (b *FireBlob) IsMarkedForDestroy() bool { return b.destroyed }
func (b *FireBlob) IsPaused() bool           { return b.paused }

// BurnOutDelay returns how long the blob takes to die once shrinking.
func (b *FireBlob) BurnOutDelay() time.Duration {
	return b.delay
}

// advance moves the countdown forward by dt.
func (b *FireBlob) advance(dt time.Duration) {
	if !b.pending || b.paused || b.destroyed {
		return
	}
	b.elapsed += dt
	if b.elapsed >= b.delay {
		b.destroyed = true
	}
}

// Spawn creates a blob at center.
func (s *Scene) Spawn(center, size mgl64.Vec3) lifecycle.Visual {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	b := &FireBlob{
		ID:     s.nextID,
		Center: center,
		Size:   size,
		delay:  minBurnOut + time.Duration(s.rng.Int64N(int64(maxBurnOut-minBurnOut)+1)),
	}
	s.blobs = append(s.blobs, b)
	s.logger.Debug("Fire blob spawned", "id", b.ID, "center", center, "size", size)
	return b
}

// Advance runs blob countdowns and forgets destroyed blobs. It fits
// sim.SystemFunc and is scheduled in the cleanup phase.
func (s *Scene) Advance(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blobs {
		b.advance(dt)
	}
	s.blobs = slices.DeleteFunc(s.blobs, func(b *FireBlob) bool { return b.destroyed })
}

// Blobs returns the blobs that are not yet destroyed.
func (s *Scene) Blobs() []*FireBlob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.blobs)
}
