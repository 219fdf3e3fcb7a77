// Package bootstrap wires all dependencies and runs the schema server.
// Configuration comes from a YAML file with SCHEMAGATE_* environment overrides.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/artpar/schemagate/adapters/clock"
	apihttp "github.com/artpar/schemagate/adapters/http"
	"github.com/artpar/schemagate/adapters/idgen"
	"github.com/artpar/schemagate/adapters/memory"
	"github.com/artpar/schemagate/adapters/metrics"
	"github.com/artpar/schemagate/adapters/sqlite"
	"github.com/artpar/schemagate/app"
	"github.com/artpar/schemagate/config"
	"github.com/artpar/schemagate/core/checker"
	"github.com/artpar/schemagate/core/exporter"
	"github.com/artpar/schemagate/core/watch"
	"github.com/artpar/schemagate/ports"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "schemagate.yaml"

// App represents the wired application.
type App struct {
	Logger  zerolog.Logger
	Config  *config.Config // startup config, not replaced on reload
	DB      *sqlite.DB     // nil unless database.driver is sqlite
	Store   ports.SnapshotStore
	Metrics *metrics.Collector
	Service *app.GeneratorService

	HTTPServer *http.Server

	toolVersion string
	gatherer    prometheus.Gatherer
	holder      *config.Holder
}

// Options provides optional settings for New.
type Options struct {
	// ToolVersion is stamped into generated headers and /version.
	ToolVersion string

	// Registry receives the collectors when metrics are enabled.
	// Defaults to the global Prometheus registry.
	Registry *prometheus.Registry

	// LogOutput defaults to stderr so stdout stays free for reports.
	LogOutput io.Writer

	// NoStore skips opening the snapshot store. Commands that never touch
	// history use it to avoid creating a database file.
	NoStore bool
}

// New wires the application from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.ToolVersion == "" {
		opts.ToolVersion = "dev"
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	logger := SetupLogger(cfg.Logging, opts.LogOutput)

	a := &App{
		Logger:      logger,
		Config:      cfg,
		toolVersion: opts.ToolVersion,
	}

	if cfg.Metrics.Enabled {
		if opts.Registry != nil {
			a.Metrics = metrics.NewWithRegistry(opts.Registry)
			a.gatherer = opts.Registry
		} else {
			a.Metrics = metrics.New()
			a.gatherer = prometheus.DefaultGatherer
		}
		logger.Debug().Msg("prometheus metrics enabled")
	}

	if !opts.NoStore {
		store, db, err := OpenStore(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.Store, a.DB = store, db
	}

	policy, err := checker.LoadPolicy(cfg.Check.Policy)
	if err != nil {
		a.Close()
		return nil, err
	}

	e, err := exporter.New(ExporterOptions(cfg, opts.ToolVersion), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init exporter: %w", err)
	}

	a.Service = app.NewGeneratorService(e, a.Store, clock.Real{}, idgen.UUID{}, a.Metrics, logger)
	a.Service.SetPolicy(policy)

	a.initHTTPServer()

	return a, nil
}

// OpenStore opens the published snapshot store. The returned DB is nil for
// the memory driver.
func OpenStore(cfg config.DatabaseConfig) (ports.SnapshotStore, *sqlite.DB, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewSnapshotStore(), nil, nil
	case "sqlite", "":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return sqlite.NewSnapshotStore(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// ExporterOptions maps configuration onto exporter options.
func ExporterOptions(cfg *config.Config, toolVersion string) exporter.Options {
	opts := exporter.DefaultOptions()
	opts.Target = cfg.Export.Target
	opts.Layout = exporter.Layout(cfg.Output.Layout)
	opts.Optional = exporter.OptionalStyle(cfg.Export.Optional)
	opts.Integers = exporter.IntegerStyle(cfg.Export.Integers)
	opts.Workers = cfg.Export.Workers
	opts.ToolVersion = toolVersion
	return opts
}

// SetupLogger builds the process logger. The "auto" format writes console
// output to a terminal and JSON everywhere else.
func SetupLogger(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" || (cfg.Format == "auto" && IsTerminal(w)) {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(w).With().Timestamp().Logger()
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *App) initHTTPServer() {
	cfg := a.Config

	handler := apihttp.NewHandler(a.Service, a.toolVersion, a.Logger)
	router := apihttp.NewRouter(handler, a.Logger, apihttp.RouterConfig{
		Metrics:       a.Metrics,
		MetricsPath:   cfg.Metrics.Path,
		Gatherer:      a.gatherer,
		EnableOpenAPI: cfg.OpenAPI.Enabled,
		Timeout:       cfg.Server.WriteTimeout,
	})

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
}

// WatchConfig hot-reloads the export options, policy and log level when
// the config file at path or its policy file changes, or the process
// receives SIGHUP.
func (a *App) WatchConfig(path string) error {
	holder, err := config.NewHolder(path, a.Logger)
	if err != nil {
		return err
	}

	holder.OnChange(func(cfg *config.Config) {
		if fields := config.RestartRequired(a.Config, cfg); len(fields) > 0 {
			a.Logger.Warn().Strs("fields", fields).Msg("restart required to apply config")
		}
		err := a.ApplyConfig(cfg)
		if err != nil {
			a.Logger.Error().Err(err).Msg("config change rejected")
		} else {
			a.Logger.Info().Uint64("generation", holder.Generation()).Msg("config applied")
		}
		if a.Metrics != nil {
			a.Metrics.ObserveConfigReload(err)
		}
	})
	holder.OnError(func(err error) {
		if a.Metrics != nil {
			a.Metrics.ObserveConfigReload(err)
		}
	})

	if err := holder.WatchFile(); err != nil {
		return err
	}
	holder.WatchSignals()

	a.holder = holder
	return nil
}

// ApplyConfig applies the reloadable parts of cfg. On error the running
// exporter and policy are kept.
func (a *App) ApplyConfig(cfg *config.Config) error {
	policy, err := checker.LoadPolicy(cfg.Check.Policy)
	if err != nil {
		return err
	}

	e, err := exporter.New(ExporterOptions(cfg, a.toolVersion), a.Logger)
	if err != nil {
		return err
	}

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
		zerolog.SetGlobalLevel(level)
	}

	a.Service.SetExporter(e)
	a.Service.SetPolicy(policy)
	return nil
}

// LoadSchema loads the configured schema directory into the service.
func (a *App) LoadSchema(ctx context.Context) error {
	_, err := a.Service.Load(ctx, a.Config.Schema.Dir)
	return err
}

// Serve loads the schema, starts the HTTP server and watches the schema
// directory until ctx is cancelled. A schema that fails to load leaves the
// server unready until a later edit fixes it.
func (a *App) Serve(ctx context.Context) error {
	if err := a.LoadSchema(ctx); err != nil {
		a.Logger.Error().Err(err).Str("dir", a.Config.Schema.Dir).Msg("initial schema load failed")
	}

	w, err := watch.New(a.Config.Schema.Dir, a.Config.Watch.Debounce, a.Logger)
	if err != nil {
		return fmt.Errorf("watch schemas: %w", err)
	}
	defer w.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := w.Run(ctx, a.reloadSchema)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return a.HTTPServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) reloadSchema(ctx context.Context) error {
	if a.Metrics != nil {
		a.Metrics.SchemaReloads.Inc()
	}
	if err := a.LoadSchema(ctx); err != nil {
		if a.Metrics != nil {
			a.Metrics.SchemaReloadErrors.Inc()
		}
		return err
	}
	return nil
}

// Close releases the config watcher and the database.
func (a *App) Close() error {
	if a.holder != nil {
		a.holder.Stop()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
			return err
		}
	}
	return nil
}
