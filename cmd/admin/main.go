package main

import (
	"arbiter/backend/internal/app"
	"arbiter/backend/internal/config"
	"arbiter/backend/internal/logging"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootFlags struct {
	envFile string
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator tools for the arbiter backend",
	Long:  "admin mints development tokens, inspects cases, expires stale\ninvitations and re-runs adjudication for a hearing.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := "warn"
		if rootFlags.verbose {
			level = "debug"
		}
		logging.Init(logging.ParseLevel(level), "text", cmd.ErrOrStderr())
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.envFile, "env-file", "", "Load configuration from this .env file instead of ./.env")
	f.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(caseCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(rejudgeCmd)
}

func loadConfig() (*config.Config, error) {
	if rootFlags.envFile != "" {
		return config.Load(rootFlags.envFile)
	}
	return config.Load()
}

// openApp connects to the shared database. The in-memory driver is refused:
// an admin process would only see its own empty store.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.StorageDriver == config.StorageDriverMemory {
		return nil, fmt.Errorf("admin commands need STORAGE_DRIVER=%s", config.StorageDriverPostgres)
	}
	return app.New(ctx, cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
