// Command caldav-tasks is an offline-first task manager backed by SQLite
// and synchronized with CalDAV servers.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mattsch/caldav-tasks/internal/config"
	"github.com/mattsch/caldav-tasks/internal/store"
)

var (
	flagConfig  string
	flagDB      string
	flagLogFile string
	flagVerbose bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "caldav-tasks",
	Short: "Offline-first CalDAV task manager",
	Long: `caldav-tasks keeps your tasks in a local SQLite database and
reconciles them with any CalDAV server that serves VTODO collections.

Everything works offline; sync runs on demand or from the background
daemon. Conflicting edits are never resolved silently: both versions are
kept visible until you pick one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagDB != "" {
			cfg.DBPath = flagDB
		}
		if flagLogFile != "" {
			cfg.LogFile = flagLogFile
		}
		logger = newLogger(cfg)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.caldav-tasks/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "log file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

// newLogger builds the process logger: rotated JSON file plus stderr for
// warnings and above.
func newLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	if flagVerbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    1, // megabytes
			MaxBackups: 3,
			Compress:   true,
		}
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStore opens the configured database, running any pending schema
// migrations.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.DBPath, err)
	}
	return s, nil
}
