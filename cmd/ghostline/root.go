package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ghostline-ai/ghostline/version"
)

var (
	cfgFile   string
	homePath  string
	logFormat string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "ghostline",
	Short: "Grounded book generation from your own source material",
	Long: `Ghostline drafts books from a project's ingested sources.

A run plans an outline, pauses for your approval, then drafts chapters
one at a time. Every chapter is verified against the sources: cited
quotes must appear verbatim, and the draft must hold the project's
voice before it passes its quality gates.

Runs checkpoint after every step, so a stopped or crashed run resumes
exactly where it left off.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: <home>/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homePath, "home", "", "ghostline home directory (default: ~/.ghostline)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logFormat, "log-format", "text", "log format: text or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "warn", "log level: debug, info, warn, error",
	)

	// .env is a dev convenience; absence is not an error.
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		slog.SetDefault(newLogger())
	}

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger from the --log-format and --log-level
// flags. Logs go to stderr so command output on stdout stays parseable.
func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(logFormat) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
