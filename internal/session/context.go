package session

import (
	"sync"
	"time"

	"github.com/heatbox/extension/internal/sim"
	"github.com/heatbox/extension/pkg/core"
)

// Context holds the current recording session. It listens to the
// simulation so status queries can read it from any goroutine.
type Context struct {
	sim.NopListener

	mu       sync.RWMutex
	session  core.Session
	active   bool
	ticks    uint64
	lastTick time.Time
	ended    int
}

// NewContext creates a Context with no session.
func NewContext() *Context {
	return &Context{session: core.Session{Name: "No session started"}}
}

// Get returns the current session and whether one is running.
func (c *Context) Get() (core.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session, c.active
}

// Ticks returns the number of ticks completed in the current session and
// when the latest one finished.
func (c *Context) Ticks() (uint64, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticks, c.lastTick
}

// Completed returns how many sessions have ended since startup.
func (c *Context) Completed() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ended
}

func (c *Context) SessionStarted(s core.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.active = true
	c.ticks = 0
	c.lastTick = time.Time{}
}

func (c *Context) SessionEnded(ticks uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.ticks = ticks
	c.ended++
}

func (c *Context) TickCompleted(stat core.TickStat, _ []core.BodySample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = stat.Tick
	c.lastTick = stat.Time
}
