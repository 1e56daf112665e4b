package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/heatbox/extension/internal/dispatcher"
	"github.com/heatbox/extension/internal/logging"
	"github.com/heatbox/extension/internal/scene"
	"github.com/heatbox/extension/internal/session"
	"github.com/heatbox/extension/internal/sim"
	"github.com/heatbox/extension/pkg/core"
)

// DefaultTimeout bounds how long a command waits for the simulation goroutine.
const DefaultTimeout = 5 * time.Second

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Clock      *sim.Clock
	Scene      *scene.Scene     // optional, backs :REGISTER:SCENE:
	Session    *session.Context // optional, enriches :STATUS:
	History    SessionLister    // optional, backs :SESSIONS:GET:
	LogManager *logging.SlogManager
	Version    string
	Timeout    time.Duration
}

// SessionLister is implemented by storage backends that can list past sessions.
type SessionLister interface {
	Sessions() ([]core.Session, error)
}

// Service translates host commands into simulation calls. Every call runs
// on the simulation goroutine through the clock.
type Service struct {
	deps         Dependencies
	writeLogFunc func(command, data, level string)
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	s := &Service{deps: deps}
	s.writeLogFunc = func(command, data, level string) {
		if deps.LogManager != nil {
			deps.LogManager.WriteLog(command, data, level)
		}
	}
	return s
}

// Status is the :STATUS: reply.
type Status struct {
	Stage     string `json:"stage"`
	Tick      uint64 `json:"tick"`
	Bodies    int    `json:"bodies"`
	LiveFires int    `json:"liveFires"`
	Orphans   int    `json:"orphans"`
	Pending   int    `json:"pendingCommands"`
	Session   string `json:"session,omitempty"`
	Recording bool   `json:"recording"`
}

// FireInfo summarizes one live fire for :FIRES:GET:.
type FireInfo struct {
	ID     uint64     `json:"id"`
	Cells  int        `json:"cells"`
	Center [3]float64 `json:"center"`
	Area   float64    `json:"area"`
	Size   float64    `json:"size"`
}

// Register binds every command to d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(":VERSION:", s.Version)
	d.Register(":LOG:", s.Log)
	d.Register(":STATUS:", s.Status, dispatcher.Logged())

	d.Register(":SIM:START:", s.Start, dispatcher.Logged())
	d.Register(":SIM:PAUSE:", s.Pause, dispatcher.Logged())
	d.Register(":SIM:RESUME:", s.Resume, dispatcher.Logged())
	d.Register(":SIM:END:", s.End, dispatcher.Logged())

	d.Register(":REGISTER:", s.RegisterCell, dispatcher.Logged())
	d.Register(":REGISTER:SCENE:", s.RegisterScene, dispatcher.Logged())
	d.Register(":REGISTRY:CLEAR:", s.ClearRegistry, dispatcher.Logged())

	d.Register(":PARAM:SET:", s.SetParam, dispatcher.Logged())
	d.Register(":PARAM:GET:", s.GetParam, dispatcher.Logged())
	d.Register(":FIRE:ON:", s.FireOn, dispatcher.Logged())
	d.Register(":HEAT:ADD:", s.AddHeat, dispatcher.Logged())
	d.Register(":TEMP:SET:", s.SetTemperature, dispatcher.Logged())
	d.Register(":TEMP:GET:", s.GetTemperature, dispatcher.Logged())

	d.Register(":BURNING:GET:", s.GetBurning, dispatcher.Logged())
	d.Register(":FLAMMABLE:GET:", s.GetFlammable, dispatcher.Logged())
	d.Register(":FIRES:GET:", s.GetFires, dispatcher.Logged())
	d.Register(":SESSIONS:GET:", s.GetSessions, dispatcher.Logged())
}

func (s *Service) do(command string, fn sim.CommandFunc) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.Timeout)
	defer cancel()
	return s.deps.Clock.Do(ctx, command, fn)
}

// Version reports the extension version.
func (s *Service) Version(e dispatcher.Event) (any, error) {
	return s.deps.Version, nil
}

// Log writes a host-side message: level, message.
func (s *Service) Log(e dispatcher.Event) (any, error) {
	if err := e.Require(2); err != nil {
		return nil, err
	}
	level, _ := e.Arg(0)
	msg, _ := e.Arg(1)
	s.writeLogFunc(e.Command, msg, level)
	return nil, nil
}

// Status reports the stage, tick and fire counts.
func (s *Service) Status(e dispatcher.Event) (any, error) {
	v, err := s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return Status{
			Stage:     sm.Stage().String(),
			Tick:      sm.TickCount(),
			Bodies:    len(sm.Bodies()),
			LiveFires: sm.LiveFires(),
			Orphans:   sm.OrphanedFires(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	st := v.(Status)
	st.Pending = s.deps.Clock.Pending()
	if s.deps.Session != nil {
		sess, active := s.deps.Session.Get()
		st.Recording = active
		if active {
			st.Session = sess.Name
		}
	}
	return st, nil
}

func (s *Service) Start(e dispatcher.Event) (any, error) {
	return s.stage(e, (*sim.Simulation).Start)
}

func (s *Service) Pause(e dispatcher.Event) (any, error) {
	return s.stage(e, (*sim.Simulation).Pause)
}

func (s *Service) Resume(e dispatcher.Event) (any, error) {
	return s.stage(e, (*sim.Simulation).Resume)
}

func (s *Service) End(e dispatcher.Event) (any, error) {
	return s.stage(e, (*sim.Simulation).End)
}

func (s *Service) stage(e dispatcher.Event, fn func(*sim.Simulation) error) (any, error) {
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		if err := fn(sm); err != nil {
			return nil, err
		}
		return sm.Stage().String(), nil
	})
}

// RegisterCell registers one pair: body, d, w, h and an optional JSON object
// of parameter overrides.
func (s *Service) RegisterCell(e dispatcher.Event) (any, error) {
	if err := e.Require(4); err != nil {
		return nil, err
	}
	body, _ := e.Arg(0)
	idx, err := index(e, 1)
	if err != nil {
		return nil, err
	}
	p := core.DefaultParams()
	if len(e.Args) > 4 {
		raw, _ := e.Arg(4)
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("%w: params: %v", dispatcher.ErrArgs, err)
		}
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return nil, sm.Register(core.BodyID(body), idx, p)
	})
}

// RegisterScene registers every overlap reported by the scene and returns
// how many pairs were new.
func (s *Service) RegisterScene(e dispatcher.Event) (any, error) {
	if s.deps.Scene == nil {
		return nil, fmt.Errorf("no scene loaded")
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return sm.RegisterFrom(s.deps.Scene), nil
	})
}

func (s *Service) ClearRegistry(e dispatcher.Event) (any, error) {
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		sm.ClearRegistry()
		if s.deps.Scene != nil {
			s.deps.Scene.ClearTags()
		}
		return nil, nil
	})
}

// SetParam sets a parameter on every active cell of a body: body, name, value.
func (s *Service) SetParam(e dispatcher.Event) (any, error) {
	if err := e.Require(3); err != nil {
		return nil, err
	}
	body, _ := e.Arg(0)
	p, err := param(e, 1)
	if err != nil {
		return nil, err
	}
	v, err := e.Float(2)
	if err != nil {
		return nil, err
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return nil, sm.SetParam(core.BodyID(body), p, v)
	})
}

// GetParam reads a parameter of a body: body, name.
func (s *Service) GetParam(e dispatcher.Event) (any, error) {
	if err := e.Require(2); err != nil {
		return nil, err
	}
	body, _ := e.Arg(0)
	p, err := param(e, 1)
	if err != nil {
		return nil, err
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return sm.Param(core.BodyID(body), p)
	})
}

// FireOn raises every cell of a body to its ignition point.
func (s *Service) FireOn(e dispatcher.Event) (any, error) {
	body, err := e.Arg(0)
	if err != nil {
		return nil, err
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return nil, sm.SetFireOn(core.BodyID(body))
	})
}

// AddHeat deposits heat into a cell: d, w, h, amount.
func (s *Service) AddHeat(e dispatcher.Event) (any, error) {
	if err := e.Require(4); err != nil {
		return nil, err
	}
	idx, err := index(e, 0)
	if err != nil {
		return nil, err
	}
	amount, err := e.Float(3)
	if err != nil {
		return nil, err
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return nil, sm.AddHeat(idx, amount)
	})
}

// SetTemperature sets the temperature of every cell of a body: body, value.
func (s *Service) SetTemperature(e dispatcher.Event) (any, error) {
	if err := e.Require(2); err != nil {
		return nil, err
	}
	body, _ := e.Arg(0)
	t, err := e.Float(1)
	if err != nil {
		return nil, err
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return nil, sm.SetBodyTemperature(core.BodyID(body), t)
	})
}

// GetTemperature returns the mean temperature of a body.
func (s *Service) GetTemperature(e dispatcher.Event) (any, error) {
	body, err := e.Arg(0)
	if err != nil {
		return nil, err
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return sm.BodyTemperature(core.BodyID(body))
	})
}

func (s *Service) GetBurning(e dispatcher.Event) (any, error) {
	body, err := e.Arg(0)
	if err != nil {
		return nil, err
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return sm.Burning(core.BodyID(body))
	})
}

func (s *Service) GetFlammable(e dispatcher.Event) (any, error) {
	body, err := e.Arg(0)
	if err != nil {
		return nil, err
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		return sm.Flammable(core.BodyID(body))
	})
}

// GetFires lists the live fires of a body.
func (s *Service) GetFires(e dispatcher.Event) (any, error) {
	body, err := e.Arg(0)
	if err != nil {
		return nil, err
	}
	return s.do(e.Command, func(sm *sim.Simulation) (any, error) {
		fires := sm.Fires(core.BodyID(body))
		out := make([]FireInfo, 0, len(fires))
		for _, f := range fires {
			out = append(out, FireInfo{
				ID:     f.ID,
				Cells:  len(f.Indices),
				Center: [3]float64(f.SpawnCenter),
				Area:   f.Estimate.Area,
				Size:   f.SpawnSize.X(),
			})
		}
		return out, nil
	})
}

// GetSessions lists recorded sessions, newest first. It does not touch the
// simulation goroutine.
func (s *Service) GetSessions(e dispatcher.Event) (any, error) {
	if s.deps.History == nil {
		return nil, fmt.Errorf("storage backend keeps no session history")
	}
	return s.deps.History.Sessions()
}

func index(e dispatcher.Event, from int) (core.Index, error) {
	d, err := e.Int(from)
	if err != nil {
		return core.Index{}, err
	}
	w, err := e.Int(from + 1)
	if err != nil {
		return core.Index{}, err
	}
	h, err := e.Int(from + 2)
	if err != nil {
		return core.Index{}, err
	}
	return core.Idx(d, w, h), nil
}

func param(e dispatcher.Event, i int) (core.Param, error) {
	name, err := e.Arg(i)
	if err != nil {
		return 0, err
	}
	p, err := core.ParseParam(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", dispatcher.ErrArgs, err)
	}
	return p, nil
}
