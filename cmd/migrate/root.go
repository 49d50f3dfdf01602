package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/eventmigrate/internal/config"
	"github.com/JonMunkholm/eventmigrate/internal/icons"
	"github.com/JonMunkholm/eventmigrate/internal/legacy"
	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/metrics"
	"github.com/JonMunkholm/eventmigrate/internal/migrate"
	"github.com/JonMunkholm/eventmigrate/internal/richtext"
	"github.com/JonMunkholm/eventmigrate/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// rootCommand creates the migrate command tree.
func rootCommand() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Migrate legacy tenants into the current schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			slog.Error("failed to load configuration", "error", err)
			return err
		}
		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

		slog.Info("configuration loaded",
			"environment", cfg.Migration.Environment,
			"batch_size", cfg.Migration.BatchSize,
			"reset_target", cfg.Migration.ResetTarget,
			"status_addr", cfg.Status.Addr,
		)
		return nil
	}

	rootCmd.AddCommand(
		runCommand(func() *config.Config { return cfg }),
		resetCommand(func() *config.Config { return cfg }),
	)
	return rootCmd
}

// signalContext cancels on SIGINT or SIGTERM and, when set, after timeout.
func signalContext(parent context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	if cfg.Migration.Timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Migration.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// openPool parses url, applies pool limits and verifies the connection.
func openPool(ctx context.Context, name, dsn string, maxConns, minConns int, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse %s database URL: %w", name, err)
	}

	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MinConns = int32(minConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", name, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s database: %w", name, err)
	}

	if u, err := url.Parse(dsn); err == nil {
		slog.Info("connected to database", "role", name, "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database", "role", name)
	}
	return pool, nil
}

// deps is everything a subcommand needs, wired from configuration.
type deps struct {
	legacyPool  *pgxpool.Pool
	currentPool *pgxpool.Pool
	icons       *icons.Deduplicator
	metrics     *metrics.MigrationMetrics
	registry    *prometheus.Registry
	service     *migrate.Service
}

func (d *deps) Close() {
	if d.legacyPool != nil {
		d.legacyPool.Close()
	}
	if d.currentPool != nil {
		d.currentPool.Close()
	}
}

// wire opens both databases and builds the migration service.
func wire(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{registry: prometheus.NewRegistry()}

	var err error
	d.legacyPool, err = openPool(ctx, "legacy", cfg.Legacy.URL, cfg.Legacy.MaxConns, 1, cfg)
	if err != nil {
		return nil, err
	}
	d.currentPool, err = openPool(ctx, "current", cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.metrics, err = metrics.NewMigrationMetrics(d.registry)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	dst := store.NewPgStore(d.currentPool)
	colors := icons.NewHTTPColorSource(&http.Client{Timeout: cfg.Icons.FetchTimeout}, cfg.Icons.BaseURL, cfg.Icons.Size)
	d.icons = icons.New(dst, colors, cfg.Icons.FetchConcurrency)

	d.service = migrate.NewService(legacy.NewPgStore(d.legacyPool), dst, d.icons, richtext.NewMarkdown(), migrate.Options{
		BatchSize:   cfg.Migration.BatchSize,
		ResetTarget: cfg.Migration.ResetTarget,
		Production:  cfg.Migration.IsProduction(),
		Targets:     migrate.DefaultTargets,
		AuthIDs:     migrate.NewAuthIDTransform(cfg.AuthID.TransformEnabled),
		Recorder:    d.metrics,
	})
	return d, nil
}

// reportFailure logs an error that did not come out of Service.Run, which
// logs its own failure.
func reportFailure(err error) {
	slog.Error("migration aborted",
		"error", err,
		"code", migrate.Classify(err).Code,
		"support", migrate.FormatSupport(err),
	)
}
