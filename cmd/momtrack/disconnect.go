package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/momtrack/internal/app"
)

func newDisconnectCmd(load loadFunc) *cobra.Command {
	var uid string
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Borra el token de Hugging Face guardado de un usuario",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uid == "" {
				return errors.New("--user is required")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, version)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Disconnect(cmd.Context(), uid); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s disconnected from Hugging Face\n", uid)
			return nil
		},
	}
	cmd.Flags().StringVar(&uid, "user", "", "ID del usuario")
	return cmd
}
