package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"talkml/agent/internal/config"
)

var (
	// Global flags
	cfgFile  string
	logLevel string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "talkmld",
	Short: "Turn-taking dialogue controller for TalkML scripts",
	Long: `talkmld uploads a TalkML dialogue script to the script backend and runs the
conversation: it speaks each scripted turn through the attached speech worker,
listens for the user's answer, matches it against the script's grammars and
reports what was heard.

Run without a subcommand to start the dialogue.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env file if present (ignored if missing)
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Server.LogLevel = logLevel
		}

		zc := zap.NewProductionConfig()
		lvl, err := zap.ParseAtomicLevel(cfg.Server.LogLevel)
		if err != nil {
			return fmt.Errorf("log level %q: %w", cfg.Server.LogLevel, err)
		}
		zc.Level = lvl
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override server.log_level")
	rootCmd.AddCommand(runCmd, checkCmd, tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
