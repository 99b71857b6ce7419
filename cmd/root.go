package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Ghostlink/internal/logging"
	"github.com/BioHazard786/Ghostlink/internal/ui"
	"github.com/BioHazard786/Ghostlink/internal/version"
)

var (
	flagEnvFile string
	flagLogFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ghostlink",
	Short: "Ephemeral peer-to-peer rooms for chat and file sharing",
	Long: `Ghostlink opens short-lived rooms where everyone connects directly to
everyone else over WebRTC. Chat and files never touch a server; the relay only
carries presence and connection setup, and the room disappears when its timer
runs out or the admin ends it.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging(slog.LevelError)
	},
}

// initLogging keeps logs off the terminal UI when --log-file is given.
func initLogging(fallback slog.Level) error {
	if flagLogFile == "" {
		logging.Init(fallback)
		return nil
	}
	f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logging.InitWriter(f, fallback)
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "Load environment from this file (default .env)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Write logs to this file instead of stderr")
}
