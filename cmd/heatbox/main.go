// Command heatbox runs the heat and combustion simulation for one scene,
// records it to the configured storage backend and optionally lets a host
// process drive it over stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/heatbox/extension/internal/config"
	"github.com/heatbox/extension/internal/dispatcher"
	"github.com/heatbox/extension/internal/handlers"
	"github.com/heatbox/extension/internal/logging"
	"github.com/heatbox/extension/internal/monitor"
	intOtel "github.com/heatbox/extension/internal/otel"
	"github.com/heatbox/extension/internal/recorder"
	"github.com/heatbox/extension/internal/scenario"
	"github.com/heatbox/extension/internal/scene"
	"github.com/heatbox/extension/internal/session"
	"github.com/heatbox/extension/internal/sim"
	"github.com/heatbox/extension/internal/storage"
	"github.com/heatbox/extension/pkg/hostbridge"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentExtensionVersion = "0.0.1"
	BuildDate               = "unknown"

	ExtensionName = "heatbox"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "heatbox:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if opts.Version {
		fmt.Printf("%s %s (%s)\n", ExtensionName, CurrentExtensionVersion, BuildDate)
		return nil
	}

	startTime := time.Now()
	// defaults stay usable when the file is missing
	cfgErr := config.Load(opts.ConfigDir)

	logFile, err := logging.OpenLogFile(config.GetString("logsDir"), ExtensionName, startTime)
	if err != nil {
		return err
	}
	defer logFile.Close()

	// the simulation does not exist yet; log enrichment picks it up once built
	var current atomic.Pointer[sim.Simulation]
	logContext := func() []slog.Attr {
		if s := current.Load(); s != nil {
			return s.LogAttrs()
		}
		return nil
	}

	otelProvider, err := setupOTel(startTime)
	if err != nil {
		return err
	}

	logManager := logging.NewSlogManager()
	logOpts := logging.Options{
		File:     logFile,
		Level:    config.GetString("logLevel"),
		Provider: otelProvider.LoggerProvider(),
		Context:  logContext,
	}
	if config.GetBool("graylog.enabled") {
		gw, err := logging.DialGraylog(config.GetString("graylog.address"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "heatbox: graylog disabled:", err)
		} else {
			defer gw.Close()
			logOpts.Graylog = gw
		}
	}
	logManager.Setup(logOpts)
	logger := logManager.Logger()
	otelProvider.SetLogger(logger)
	zlog := logging.NewZerolog(logFile, config.GetString("logLevel"), logContext)

	if cfgErr != nil {
		logger.Warn("Failed to load config, using defaults!", "error", cfgErr)
	} else {
		logger.Info("Loaded config", "dir", opts.ConfigDir)
	}
	logger.Info("Starting heatbox", "version", CurrentExtensionVersion, "build", BuildDate)

	// storage
	storageCfg, err := config.GetStorageConfig()
	if err != nil {
		return err
	}
	backend, err := storage.NewBackend(storageCfg, storage.Dependencies{
		Logger:   logger,
		DBLogger: zlog.With().Str("component", "database").Logger(),
		Version:  CurrentExtensionVersion,
	})
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err)
	}
	logger.Info("Storage initialized", "type", storageCfg.Type)

	rec := recorder.New(backend, logger)
	rec.Start()

	// scene
	simCfg, err := config.GetSimConfig()
	if err != nil {
		return err
	}
	sc, script, err := loadScene(simCfg, logger)
	if err != nil {
		return err
	}
	if script != nil {
		simCfg = script.Config
	}

	// dispatcher
	d, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	var steps []scenario.Step
	if script != nil {
		steps = script.Script
	}
	runner := newScriptRunner(steps, d, logger)

	// simulation
	sessionCtx := session.NewContext()
	simulation, err := sim.New(simCfg, sim.Dependencies{
		Sampler:  sc,
		Spawner:  sc,
		Tagger:   sc,
		Listener: sim.Listeners{rec, sessionCtx, runner, otelProvider},
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	simulation.AddSystem(sim.SystemFunc{At: sim.PhaseCleanup, Fn: sc.Advance})
	current.Store(simulation)
	clock := sim.NewClock(simulation, logger)

	deps := handlers.Dependencies{
		Clock:      clock,
		Scene:      sc,
		Session:    sessionCtx,
		LogManager: logManager,
		Version:    CurrentExtensionVersion,
	}
	if h, ok := backend.(handlers.SessionLister); ok {
		deps.History = h
	}
	handlers.NewService(deps).Register(d)
	logger.Debug("Registered commands", "commands", d.Commands())

	monDeps := monitor.Dependencies{
		Session:  sessionCtx,
		Recorder: rec,
		Dir:      config.GetString("logsDir"),
		Logger:   logger,
	}
	if q, ok := backend.(monitor.QueueSource); ok {
		monDeps.Queues = q
	}
	mon := monitor.NewService(monDeps)
	mon.Start()

	// run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clockDone := make(chan error, 1)
	go func() { clockDone <- clock.Run(ctx) }()
	go runner.Run(ctx)

	if opts.AutoStart {
		for _, cmd := range []string{":REGISTER:SCENE:", ":SIM:START:"} {
			if _, err := d.Dispatch(dispatcher.Event{Command: cmd, Timestamp: time.Now()}); err != nil {
				logger.Error("Auto start failed", "command", cmd, "error", err)
			}
		}
	}

	if opts.Stdin {
		go func() {
			err := hostbridge.New(d).Serve(ctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Host bridge stopped", "error", err)
			}
			logger.Info("Host bridge closed")
			stop()
		}()
	}

	if opts.Once {
		select {
		case <-ctx.Done():
		case <-runner.Ended():
			logger.Info("Session ended, exiting")
		}
	} else {
		<-ctx.Done()
	}
	logger.Info("Shutting down")
	stop()
	d.Close()
	if err := <-clockDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Clock stopped", "error", err)
	}

	return shutdown(simulation, rec, backend, mon, otelProvider, logManager, logger)
}

// loadScene builds the scene from the configured scenario, or an empty scene
// when none is set.
func loadScene(cfg sim.Config, logger *slog.Logger) (*scene.Scene, *scenario.Scenario, error) {
	path := config.GetString("scenario.path")
	if path == "" {
		logger.Info("No scenario configured, starting with an empty scene")
		return scene.New(scene.GridOf(cfg), 0, logger), nil, nil
	}

	s, err := scenario.Load(path, cfg)
	if err != nil {
		return nil, nil, err
	}
	sc, err := s.Build(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build scenario %s: %w", path, err)
	}
	logger.Info("Scenario loaded",
		"path", path,
		"name", s.Name,
		"bodies", len(s.Bodies),
		"steps", len(s.Script))
	return sc, s, nil
}

func setupOTel(start time.Time) (*intOtel.Provider, error) {
	cfg := intOtel.Config{
		Enabled:      config.GetBool("otel.enabled"),
		ServiceName:  config.GetString("otel.serviceName"),
		Version:      CurrentExtensionVersion,
		BatchTimeout: config.GetDuration("otel.batchTimeout"),
		Endpoint:     config.GetString("otel.endpoint"),
		Insecure:     config.GetBool("otel.insecure"),
	}
	if path := config.GetString("scenario.path"); path != "" {
		cfg.Attributes = map[string]string{"heatbox.scenario": filepath.Base(path)}
	}
	if cfg.Enabled {
		f, err := logging.OpenLogFile(config.GetString("logsDir"), ExtensionName+".otel", start)
		if err != nil {
			return nil, err
		}
		cfg.LogWriter = f
	}
	p, err := intOtel.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up OTel: %w", err)
	}
	return p, nil
}

// shutdown ends a running session so it gets recorded, then closes every
// component in dependency order.
func shutdown(
	simulation *sim.Simulation,
	rec *recorder.Recorder,
	backend storage.Backend,
	mon *monitor.Service,
	otelProvider *intOtel.Provider,
	logManager *logging.SlogManager,
	logger *slog.Logger,
) error {
	// the clock goroutine has exited, so the simulation is ours
	if simulation.Stage() != sim.StageNone {
		if err := simulation.End(); err != nil {
			logger.Error("Failed to end simulation", "error", err)
		}
	}

	mon.Stop()
	rec.Close()
	stats := rec.Stats()
	logger.Info("Recorder closed", "written", stats.Written, "failed", stats.Failed)

	var errs []error
	if err := backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := logManager.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := otelProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
