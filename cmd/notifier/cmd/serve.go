package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/attendance-notify/internal/config"
	"github.com/rickgao/attendance-notify/internal/connection"
	"github.com/rickgao/attendance-notify/internal/database"
	"github.com/rickgao/attendance-notify/internal/httpapi"
	"github.com/rickgao/attendance-notify/internal/journal"
	"github.com/rickgao/attendance-notify/internal/metrics"
	"github.com/rickgao/attendance-notify/internal/notify"
	"github.com/rickgao/attendance-notify/internal/version"
	"github.com/rickgao/attendance-notify/internal/wa"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the notifier service",
	Long:  "Open the WhatsApp session store, start the connection manager and serve the admin API until SIGINT or SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadAndValidate(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := newLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	logger = logger.With("instance", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting notifier",
		"version", version.Version,
		"commit", version.Commit,
		"whatsmeow", version.WhatsmeowVersion(),
		"config", cfgFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session store
	wa.SetDeviceName(cfg.WhatsApp.DeviceName)
	store, err := wa.OpenStore(ctx, cfg.WhatsApp.StoreDialect, cfg.WhatsApp.StoreDSN, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	recorder := metrics.NewRecorder()
	managerOpts := []connection.Option{
		connection.WithLogger(logger),
		connection.WithObserver(recorder),
	}

	// Journal
	var writer *journal.Writer
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database", "dsn", database.Redacted(cfg.Journal.Database))
		pool, err := database.Connect(ctx, cfg.Journal.Database, version.UserAgent())
		if err != nil {
			return err
		}
		defer pool.Close()

		writer = journal.NewWriter(journal.Config{
			Instance:      cfg.Instance.ID,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)
		if err := writer.EnsureSchema(ctx); err != nil {
			return err
		}
		// drained by Stop during shutdown, not by the signal
		if err := writer.Start(context.Background()); err != nil {
			return err
		}
		recorder.RegisterQueue("journal", func() float64 { return float64(writer.Pending()) })
		managerOpts = append(managerOpts, connection.WithObserver(writer))
	}

	mgr := connection.NewManager(cfg.ConnectionConfig(), store.Factory(), managerOpts...)

	// Notifier
	loc, err := time.LoadLocation(cfg.Notifier.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	var notifyOpts []notify.Option
	if writer != nil {
		notifyOpts = append(notifyOpts, notify.WithJournal(writer))
	}
	notifier := notify.New(notify.Config{
		Target:         cfg.WhatsApp.GroupTarget,
		Workers:        cfg.Notifier.Workers,
		QueueSize:      cfg.Notifier.QueueSize,
		Location:       loc,
		LoginTemplate:  cfg.Notifier.LoginTemplate,
		LogoutTemplate: cfg.Notifier.LogoutTemplate,
		SendTimeout:    cfg.Notifier.SendTimeout,
	}, mgr, logger, notifyOpts...)
	if err := notifier.Start(context.Background()); err != nil {
		return err
	}
	recorder.RegisterQueue("notify", func() float64 { return float64(notifier.Pending()) })

	if cfg.WhatsApp.AutoStart {
		if err := mgr.Start(ctx); err != nil {
			logger.Error("whatsapp auto start failed", "error", err)
		}
	}

	server := httpapi.New(httpapi.Config{
		AdminToken:    cfg.HTTP.AdminToken,
		DefaultTarget: cfg.WhatsApp.GroupTarget,
		MetricsPath:   cfg.Metrics.Path,
	}, mgr,
		httpapi.WithNotifier(notifier),
		httpapi.WithMetrics(recorder.Handler()),
		httpapi.WithLogger(logger),
	)

	serveErr := server.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.HTTP.Port), cfg.HTTP.ShutdownTimeout)
	if serveErr != nil {
		logger.Error("http server error", "error", serveErr)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := notifier.Stop(shutdownCtx); err != nil {
		logger.Warn("notifier stop", "error", err)
	}
	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Warn("manager stop", "error", err)
	}
	if writer != nil {
		if err := writer.Stop(shutdownCtx); err != nil {
			logger.Warn("journal stop", "error", err)
		}
	}

	logger.Info("notifier stopped")
	return serveErr
}
