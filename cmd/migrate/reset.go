package main

import (
	"github.com/JonMunkholm/eventmigrate/internal/config"
	"github.com/spf13/cobra"
)

func resetCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Truncate every table of the target schema",
		Long:  `Truncate every table the migration writes. Refused when MIGRATE_ENVIRONMENT is production.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			ctx, cancel := signalContext(cmd.Context(), c)
			defer cancel()

			d, err := wire(ctx, c)
			if err != nil {
				reportFailure(err)
				return err
			}
			defer d.Close()

			if err := d.service.Reset(ctx); err != nil {
				reportFailure(err)
				return err
			}
			return nil
		},
	}
}
