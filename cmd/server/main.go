package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatsync/internal/app"
	"chatsync/internal/config"
	applog "chatsync/internal/log"
)

var (
	flagConfigPath string
	flagAddr       string
	flagLogLevel   string
	flagPretty     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatsync",
		Short: "Two-party chat synchronization server",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chatsync HTTP server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVarP(&flagConfigPath, "config", "c", "", "path to config file")
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	serveCmd.Flags().BoolVar(&flagPretty, "pretty", true, "human-readable log output")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	bootLogger := applog.New("info", flagPretty)

	cfg, configPath, err := config.Load(bootLogger, flagConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logger := applog.New(cfg.LogLevel, flagPretty)
	logger.Info().Str("config", configPath).Str("addr", cfg.Addr).Msg("starting chatsync server")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
