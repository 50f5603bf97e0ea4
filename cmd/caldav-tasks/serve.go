package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattsch/caldav-tasks/internal/config"
	"github.com/mattsch/caldav-tasks/internal/statusd"
	syncengine "github.com/mattsch/caldav-tasks/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background sync daemon",
	Long: `Run the daemon: sync every active account on an interval and expose a
WebSocket status feed for frontends.

The config file is watched; changing sync_interval takes effect without a
restart. Stop with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.StatusPort
		}
		if port == 0 {
			port = 8337
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		status := statusd.NewServer(port, logger)
		if err := status.Start(); err != nil {
			return err
		}
		defer func() { _ = status.Stop() }()

		fmt.Printf("Status feed on ws://localhost:%d/ws\n", port)

		watcher, err := config.NewWatcher(flagConfig)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer func() { _ = watcher.Stop() }()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		interval := cfg.SyncInterval
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		runSync := func() {
			if transportFactory == nil {
				logger.Debug("no transport in this build, publishing counts only")
			} else {
				accounts, err := s.ListAccounts(ctx, true)
				if err != nil {
					logger.Error("failed to list accounts", "error", err)
					return
				}
				for _, acct := range accounts {
					tr, err := transportFactory(acct)
					if err != nil {
						logger.Error("failed to build transport", "account", acct.Name, "error", err)
						continue
					}
					engine := syncengine.New(s, tr,
						syncengine.WithLogger(logger),
						syncengine.WithNotifier(status))
					if _, err := engine.SyncAccount(ctx, acct.ID); err != nil {
						logger.Error("sync failed", "account", acct.Name, "error", err)
					}
				}
			}

			counts, err := s.CountTasks(ctx)
			if err != nil {
				logger.Error("failed to count tasks", "error", err)
				return
			}
			status.PublishCounts(statusd.TaskCountsData{
				Total:     counts.Total,
				Open:      counts.Total - counts.Completed,
				Completed: counts.Completed,
			})
		}

		runSync()
		for {
			select {
			case <-ctx.Done():
				logger.Info("daemon stopping")
				return nil

			case <-ticker.C:
				runSync()

			case next, ok := <-watcher.Updates():
				if !ok {
					continue
				}
				if next.SyncInterval != interval {
					interval = next.SyncInterval
					ticker.Reset(interval)
					logger.Info("sync interval updated", "interval", interval)
				}

			case err, ok := <-watcher.Errors():
				if ok {
					logger.Warn("config reload failed", "error", err)
				}
			}
		}
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "status feed port (default from config, else 8337)")
	rootCmd.AddCommand(serveCmd)
}
