// Command seekerd runs the SEEKER classification daemon: it classifies
// free-text requests against the category taxonomy, routes them to capable
// agents, dispatches assignments, and adapts weights from outcome feedback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/seekerlabs/seekerd/internal/agents"
	"github.com/seekerlabs/seekerd/internal/api"
	"github.com/seekerlabs/seekerd/internal/classifier"
	"github.com/seekerlabs/seekerd/internal/config"
	"github.com/seekerlabs/seekerd/internal/dispatch"
	"github.com/seekerlabs/seekerd/internal/orchestrator"
	"github.com/seekerlabs/seekerd/internal/outcome"
	"github.com/seekerlabs/seekerd/internal/router"
	"github.com/seekerlabs/seekerd/internal/sair"
	"github.com/seekerlabs/seekerd/internal/scheduler"
	"github.com/seekerlabs/seekerd/internal/security"
	"github.com/seekerlabs/seekerd/internal/taxonomy"
	"github.com/seekerlabs/seekerd/internal/wal"
)

var version = "0.1.0"

// App holds all the runtime components.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Taxonomy     *taxonomy.Store
	Registry     *agents.Registry
	Outcomes     *outcome.Store
	Loop         *sair.Loop
	Transport    dispatch.Transport
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler
	Watcher      *config.Watcher
	APIServer    *api.Server

	cancel context.CancelFunc
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "seekerd.json", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("seekerd %s\n", version)
		return 0
	}

	app, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.start(ctx)

	if err := waitForShutdown(app); err != nil {
		app.Logger.Error("shutdown error", "error", err)
		return 1
	}
	return 0
}

// setup initializes all application components.
func setup(configPath string) (*App, error) {
	app := &App{}

	app.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	app.Logger.Info("starting seekerd", "version", version, "config", configPath)

	cfg, err := loadConfig(configPath, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app.Config = cfg

	// Recreate logger with config's log level.
	app.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	// Category taxonomy: TOML catalog or built-in defaults.
	cats, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	tax, err := taxonomy.NewStore(cats, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("create taxonomy: %w", err)
	}
	app.Taxonomy = tax

	// Agent registry: persisted state plus seed definitions.
	registry, err := agents.NewRegistry(cfg.AgentStateDir(), app.Logger)
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}
	if err := registry.Load(); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	if err := seedAgents(registry, cfg, app.Logger); err != nil {
		return nil, fmt.Errorf("seed agents: %w", err)
	}
	app.Registry = registry

	// Outcome log.
	store, err := outcome.New(cfg.OutcomeDBPath(), app.Logger)
	if err != nil {
		return nil, fmt.Errorf("open outcome store: %w", err)
	}
	app.Outcomes = store

	// Learning journal + adaptive loop.
	journal, err := wal.New(cfg.JournalDir())
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	app.Loop = sair.NewLoop(cfg.Learning, store, tax, registry, journal, app.Logger)

	// Dispatch transport.
	transport, err := buildTransport(cfg, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	app.Transport = transport
	dispatcher := dispatch.NewDispatcher(transport, cfg.DispatchTimeout(), app.Logger)

	rt := router.New(cfg.Router, app.Logger)
	engine := classifier.New(cfg.Classifier, app.Logger)
	app.Orchestrator = orchestrator.New(orchestrator.Config{},
		engine, rt, tax, registry, store, dispatcher, app.Logger)

	// Scheduler drives periodic learning cycles and agent persistence.
	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(&jobExecutor{app: app}, app.Logger)
		for _, job := range cfg.Scheduler.Jobs {
			if err := sched.AddJob(job); err != nil {
				return nil, fmt.Errorf("add job %s: %w", job.ID, err)
			}
		}
		app.Scheduler = sched
	}

	// Hot-reload the catalog file when it changes on disk.
	if cfg.CatalogPath != "" {
		app.Watcher = config.NewWatcher(cfg.CatalogPath, 30*time.Second, app.Logger, func() {
			cats, err := loadCatalog(cfg)
			if err != nil {
				app.Logger.Error("catalog reload failed", "error", err)
				return
			}
			if _, err := tax.Replace(cats); err != nil {
				app.Logger.Error("catalog replace failed", "error", err)
			}
		})
	}

	app.APIServer = api.NewServer(cfg.Server.Port, app.Orchestrator, registry,
		tax, rt, app.Loop, security.GetJWTSecret(), app.Logger)

	return app, nil
}

// start launches the background components.
func (app *App) start(ctx context.Context) {
	if mt, ok := app.Transport.(*dispatch.MQTTTransport); ok {
		if err := mt.Start(ctx); err != nil {
			app.Logger.Error("mqtt transport start failed", "error", err)
		}
	}
	if app.Scheduler != nil {
		if err := app.Scheduler.Start(ctx); err != nil {
			app.Logger.Error("scheduler start failed", "error", err)
		}
	}
	if app.Watcher != nil {
		app.Watcher.Start()
	}

	go app.Loop.Start(ctx)

	go func() {
		if err := app.APIServer.Start(ctx); err != nil {
			app.Logger.Error("API server error", "error", err)
		}
	}()
}

// jobExecutor adapts the runtime components to the scheduler's actions.
type jobExecutor struct {
	app *App
}

func (e *jobExecutor) RunLearningCycle(ctx context.Context) error {
	_, err := e.app.Loop.RunCycle(ctx)
	if errors.Is(err, sair.ErrCycleRunning) {
		return nil
	}
	return err
}

func (e *jobExecutor) PersistAgents(ctx context.Context) error {
	return e.app.Registry.SaveAll()
}

// loadConfig reads the config file, writing defaults if it doesn't exist.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("config not found, writing defaults", "path", path)
		cfg := config.DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(cfg.Server.DataDir, 0750); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// loadCatalog reads the TOML category catalog, falling back to the built-in
// default taxonomy.
func loadCatalog(cfg *config.Config) ([]taxonomy.Category, error) {
	if cfg.CatalogPath == "" {
		return taxonomy.DefaultCatalog(), nil
	}
	return taxonomy.LoadCatalog(cfg.CatalogPath, 0.60)
}

// seedAgents registers agents from the YAML defs file (or the defaults)
// that the persisted state doesn't already know.
func seedAgents(registry *agents.Registry, cfg *config.Config, logger *slog.Logger) error {
	var defs []agents.Def
	if cfg.AgentDefsPath != "" {
		loaded, err := agents.LoadDefs(cfg.AgentDefsPath)
		if err != nil {
			return err
		}
		defs = loaded
	} else {
		defs = agents.DefaultDefs()
	}

	for _, def := range defs {
		if _, err := registry.Get(def.ID); err == nil {
			continue
		}
		if _, err := registry.Register(def); err != nil {
			return fmt.Errorf("register %s: %w", def.ID, err)
		}
		logger.Info("agent registered", "agent", def.ID)
	}
	return nil
}

// buildTransport selects the dispatch transport from config.
func buildTransport(cfg *config.Config, logger *slog.Logger) (dispatch.Transport, error) {
	switch cfg.Dispatch.Transport {
	case "", "local":
		return dispatch.NewLocalTransport(), nil
	case "mqtt":
		return dispatch.NewMQTTTransport(cfg.Dispatch.MQTT, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport: %s", cfg.Dispatch.Transport)
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// waitForShutdown waits for termination and performs graceful shutdown.
func waitForShutdown(app *App) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	app.Logger.Info("shutdown signal received", "signal", sig)

	app.cancel()

	if app.Watcher != nil {
		app.Watcher.Stop()
	}
	if app.Scheduler != nil {
		app.Scheduler.Stop()
	}
	if mt, ok := app.Transport.(*dispatch.MQTTTransport); ok {
		mt.Stop()
	}

	// Let in-flight dispatches land before closing stores.
	app.Orchestrator.Wait()

	app.Logger.Info("saving state...")
	if err := app.Registry.SaveAll(); err != nil {
		app.Logger.Error("failed to save agents", "error", err)
	}
	if err := app.Outcomes.Close(); err != nil {
		app.Logger.Error("failed to close outcome store", "error", err)
	}

	app.Logger.Info("seekerd stopped")
	return nil
}
