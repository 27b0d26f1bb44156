package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/momtrack/internal/app"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
)

func newMigrateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones embebidas del driver SQL configurado",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			conn, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			res, err := app.Migrate(cmd.Context(), conn)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res == nil {
				fmt.Fprintf(out, "driver %s has no SQL migrations\n", conn.Name())
				return nil
			}
			fmt.Fprintf(out, "applied=%v skipped=%v\n", res.Applied, res.Skipped)
			logger.S().Infof("migrations done: %d applied, %d skipped in %s", len(res.Applied), len(res.Skipped), res.Duration)
			return nil
		},
	}
}
