package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/memchat/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "memchat",
	Short:         "Terminal chat client for a streaming agent endpoint",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// logFile receives logs while the terminal repaints in place.
const logFile = "memchat.log"

func setupLogging(cfg *config.Config) {
	setupLoggingTo(cfg, os.Stderr)
}

func setupLoggingTo(cfg *config.Config, w io.Writer) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// setupLiveLogging logs to stderr, or to logFile in the data dir when live is
// set. The returned func closes the log file.
func setupLiveLogging(cfg *config.Config, live bool) func() {
	if !live {
		setupLogging(cfg)
		return func() {}
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		setupLogging(cfg)
		slog.Warn("failed to create data dir, logging to stderr", "error", err)
		return func() {}
	}
	path := filepath.Join(cfg.DataDir, logFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		setupLogging(cfg)
		slog.Warn("failed to open log file, logging to stderr", "path", path, "error", err)
		return func() {}
	}
	setupLoggingTo(cfg, f)
	return func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", err)
		}
	}
}
