// Command momtrack es el backend de la app: API HTTP, migraciones y operaciones.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/momtrack/internal/config"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
)

// Se setean con -ldflags en el build.
var (
	version = "dev"
	commit  = ""
)

type loadFunc func() (*config.Config, error)

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	// .env es opcional
	_ = godotenv.Load()

	configPath := envOr("CONFIG_PATH", "config.yaml")

	root := &cobra.Command{
		Use:           "momtrack",
		Short:         "Backend de momtrack (cuentas + vinculación con Hugging Face)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Path al YAML de configuración (env CONFIG_PATH)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(logger.Config{
			Env:         cfg.Log.Env,
			Level:       cfg.Log.Level,
			ServiceName: cfg.Otel.ServiceName,
			Version:     version,
		})
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newDisconnectCmd(load),
		newVersionCmd(),
	)

	err := root.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
