package main

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/eventmigrate/internal/config"
	"github.com/JonMunkholm/eventmigrate/internal/web"
	"github.com/spf13/cobra"
)

func runCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full migration",
		Long: `Clear the target (unless MIGRATE_RESET_TARGET=false), copy every legacy
user, then migrate each configured tenant with its roles, memberships,
categories, templates and events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd.Context(), cfg())
		},
	}
}

func runMigration(parent context.Context, cfg *config.Config) error {
	ctx, cancel := signalContext(parent, cfg)
	defer cancel()

	d, err := wire(ctx, cfg)
	if err != nil {
		reportFailure(err)
		return err
	}
	defer d.Close()

	if cfg.Status.Addr != "" {
		srv := web.NewServer(d.service.Progress(), d.registry)
		if err := srv.Start(cfg.Status.Addr); err != nil {
			reportFailure(err)
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("status server shutdown error", "error", err)
			}
		}()
	}

	summary, err := d.service.Run(ctx)

	iconStats := d.icons.Stats()
	d.metrics.AddIcons(iconStats.Inserted, iconStats.ColorMisses)
	if summary != nil {
		d.metrics.AddResolverHits(summary.Resolver.Hits)
	}
	slog.Info("icons",
		"ensured", iconStats.Ensured,
		"inserted", iconStats.Inserted,
		"color_misses", iconStats.ColorMisses,
	)

	if err != nil {
		return err
	}

	for _, t := range summary.Tenants {
		slog.Info("tenant summary", "domain", t.Domain, "status", t.Status, "duration_ms", t.Duration.Milliseconds())
	}
	return nil
}
