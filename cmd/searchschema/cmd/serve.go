package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchschema/internal/config"
	"github.com/Aman-CERP/searchschema/internal/engine/embedded"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
	"github.com/Aman-CERP/searchschema/internal/logging"
	"github.com/Aman-CERP/searchschema/internal/schema"
	"github.com/Aman-CERP/searchschema/internal/server"
	"github.com/Aman-CERP/searchschema/internal/telemetry"
	"github.com/Aman-CERP/searchschema/internal/watcher"
	"github.com/Aman-CERP/searchschema/pkg/version"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	var (
		addr              string
		retentionInterval time.Duration
		noWatch           bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run schema startup and serve probes, metrics and the admin API",
		Long: `Start the HTTP server, then converge the schema in the background,
retrying until the store accepts it. /ready reports 200 once the schema is
ready for use.

The configuration files are watched. Index, schema manager and retention
changes are applied by rerunning startup; connection changes need a restart.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			level := cfg.Server.LogLevel
			if cmd.Flags().Changed("log-level") {
				level = o.logLevel
			}
			logPath := cfg.Server.LogFile
			if logPath == "" {
				logPath = logging.DefaultLogPath()
			}
			logger, cleanup, err := logging.Setup(logging.Config{
				Level:         level,
				FilePath:      logPath,
				MaxSizeMB:     10,
				MaxFiles:      5,
				WriteToStderr: true,
			})
			if err != nil {
				return err
			}
			o.setLogger(logger, cleanup)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := &serveSession{
				o:       o,
				logger:  logger,
				metrics: telemetry.NewMetrics(prometheus.DefaultRegisterer),
			}
			return s.run(ctx, cfg, retentionInterval, !noWatch)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.address)")
	cmd.Flags().DurationVar(&retentionInterval, "retention-interval", time.Hour, "How often the embedded store applies retention (0 disables)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload when the configuration changes")

	return cmd
}

// serveSession is one running serve command.
type serveSession struct {
	o       *rootOptions
	logger  *slog.Logger
	metrics *telemetry.Metrics

	env *environment
	srv *server.Server

	mu            sync.Mutex
	cancelStartup context.CancelFunc
	startups      sync.WaitGroup
}

func (s *serveSession) run(ctx context.Context, cfg *config.Config, retentionInterval time.Duration, watch bool) error {
	s.logger.Info("serve_starting",
		slog.String("version", version.Short()),
		slog.String("engine", cfg.Connect.Type),
		slog.String("index_prefix", cfg.Connect.IndexPrefix),
		slog.String("address", cfg.Server.Address))

	env, err := openEnvironment(ctx, cfg, s.logger, schema.WithMetrics(s.metrics))
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()
	s.env = env

	s.srv = server.New(server.Config{
		Address:      cfg.Server.Address,
		CheckTimeout: 2 * time.Second,
		Logger:       s.logger,
	}, env.client, env.manager)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.srv.ListenAndServe(gctx) })

	s.startSchema(gctx, env.manager)
	defer s.startups.Wait()
	defer s.stopSchema()

	if watch {
		s.watchConfig(gctx, g)
	}

	if ec, ok := env.client.(*embedded.Client); ok && retentionInterval > 0 {
		g.Go(func() error {
			s.retentionLoop(gctx, ec, retentionInterval)
			return nil
		})
	}

	return g.Wait()
}

// startSchema runs startup for m in the background, cancelling any
// startup still retrying for an older manager.
func (s *serveSession) startSchema(ctx context.Context, m *schema.Manager) {
	s.mu.Lock()
	if s.cancelStartup != nil {
		s.cancelStartup()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelStartup = cancel
	s.mu.Unlock()

	s.startups.Add(1)
	go func() {
		defer s.startups.Done()
		if err := m.Startup(runCtx); err != nil {
			if runCtx.Err() == nil {
				s.logger.Error("schema_startup_gave_up", schemaerrors.LogAttrs(err)...)
			}
			return
		}
		if err := s.env.metadata.StoreSchemaVersion(runCtx, version.Short()); err != nil && runCtx.Err() == nil {
			s.logger.Warn("schema_version_store_failed", schemaerrors.LogAttrs(err)...)
		}
	}()
}

func (s *serveSession) stopSchema() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelStartup != nil {
		s.cancelStartup()
	}
}

// watchPaths lists the files whose changes trigger a reload.
func (s *serveSession) watchPaths() []string {
	if s.o.configFile != "" {
		return []string{s.o.configFile}
	}
	var paths []string
	if p := config.GetUserConfigPath(); p != "" {
		paths = append(paths, p)
	}
	return append(paths, filepath.Join(s.o.dir, config.ProjectConfigFile))
}

func (s *serveSession) watchConfig(ctx context.Context, g *errgroup.Group) {
	w, err := watcher.New(watcher.DefaultOptions(), s.logger, s.watchPaths()...)
	if err != nil {
		s.logger.Warn("config_watch_unavailable", slog.String("error", err.Error()))
		return
	}

	g.Go(func() error {
		err := w.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		return w.Stop()
	})
	g.Go(func() error {
		for batch := range w.Events() {
			for _, ev := range batch {
				s.logger.Info("config_changed",
					slog.String("path", ev.Path),
					slog.String("operation", ev.Operation.String()))
			}
			s.reload(ctx)
		}
		return nil
	})
}

// reload applies a changed configuration by rebuilding the manager on the
// open store and rerunning startup.
func (s *serveSession) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cfg, err := s.o.loadConfig()
	if err != nil {
		s.logger.Warn("config_reload_failed", schemaerrors.LogAttrs(err)...)
		return
	}
	if cfg.Connect != s.env.cfg.Connect {
		s.logger.Warn("config_reload_connect_changed",
			slog.String("detail", "connection settings take effect after a restart"))
		cfg.Connect = s.env.cfg.Connect
	}
	s.mu.Lock()
	s.env.cfg = cfg
	s.mu.Unlock()

	m := s.env.newManager(cfg, s.logger, schema.WithMetrics(s.metrics))
	s.srv.SetManager(m)
	s.logger.Info("config_reloaded")
	s.startSchema(ctx, m)
}

// retentionSweeper deletes expired indices and returns their names.
type retentionSweeper interface {
	ApplyRetention(ctx context.Context) ([]string, error)
}

// retentionEnabled reads the flag from the current configuration, which a
// reload may have changed.
func (s *serveSession) retentionEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env.cfg.Retention.Enabled
}

func (s *serveSession) retentionLoop(ctx context.Context, sw retentionSweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepRetention(ctx, sw)
		}
	}
}

// sweepRetention runs one retention pass when retention is enabled.
func (s *serveSession) sweepRetention(ctx context.Context, sw retentionSweeper) {
	if !s.retentionEnabled() {
		return
	}
	deleted, err := sw.ApplyRetention(ctx)
	if err != nil {
		s.logger.Warn("retention_failed", schemaerrors.LogAttrs(err)...)
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("retention_applied", slog.Any("deleted", deleted))
	}
}
