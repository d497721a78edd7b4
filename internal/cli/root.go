package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz-session-service",
		Short: "Timed quiz session service with per-user randomization",
	}

	port := cmd.PersistentFlags().String("port", envOr("PORT", "8080"), "port to listen on")
	configPath := cmd.PersistentFlags().String("config", envOr("CONFIG_PATH", "config/config.yaml"), "path to YAML config")

	cmd.AddCommand(NewStartCmd(configPath, port))
	cmd.AddCommand(NewMigrateCmd(configPath))
	return cmd
}

// envOr reads an environment variable, falling back when unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
