package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattsch/caldav-tasks/internal/model"
	syncengine "github.com/mattsch/caldav-tasks/internal/sync"
	"github.com/mattsch/caldav-tasks/internal/ui"
)

// transportFactory builds the wire transport for an account. The core
// binary ships without one; distributions bundle a CalDAV client and set
// this from their own main package.
var transportFactory func(acct *model.Account) (syncengine.Transport, error)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync all active accounts now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if transportFactory == nil {
			return fmt.Errorf("this build has no CalDAV transport; run 'caldav-tasks status' to inspect pending work")
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		accounts, err := s.ListAccounts(cmd.Context(), true)
		if err != nil {
			return err
		}

		for _, acct := range accounts {
			tr, err := transportFactory(acct)
			if err != nil {
				return fmt.Errorf("failed to build transport for %s: %w", acct.Name, err)
			}
			engine := syncengine.New(s, tr, syncengine.WithLogger(logger))

			cals, err := s.ListCalendars(cmd.Context(), &acct.ID)
			if err != nil {
				return err
			}
			for _, cal := range cals {
				sum, err := engine.SyncCalendar(cmd.Context(), cal.ID)
				if err != nil {
					return fmt.Errorf("failed to sync %s: %w", cal.Name, err)
				}
				if sum == nil {
					continue
				}
				printSummary(cal, sum)
			}
		}
		return nil
	},
}

func printSummary(cal *model.Calendar, sum *syncengine.Summary) {
	if sum.Unchanged {
		fmt.Printf("%s %s\n", ui.Accent(cal.Name), ui.Muted("up to date"))
		return
	}
	fmt.Printf("%s pushed %d, pulled %d, deleted %d\n",
		ui.Accent(cal.Name), sum.Pushed, sum.Pulled, sum.Deleted)
	for _, c := range sum.Conflicts {
		fmt.Printf("  %s %s local %s vs remote %s\n",
			ui.Warn("conflict"), c.UID, ui.Muted(c.LocalEtag), ui.Muted(c.RemoteEtag))
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and pending sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		version, err := s.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}
		counts, err := s.CountTasks(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("database       %s (schema v%d)\n", s.Path(), version)
		fmt.Printf("tasks          %d total, %d completed\n", counts.Total, counts.Completed)
		fmt.Printf("pending push   %d\n", counts.Unsynced)
		fmt.Printf("pending delete %d\n", counts.Tombstone)

		cals, err := s.ListCalendars(cmd.Context(), nil)
		if err != nil {
			return err
		}
		for _, cal := range cals {
			if cal.AccountID == nil {
				continue
			}
			dirty, err := s.ListUnsynced(cmd.Context(), cal.ID)
			if err != nil {
				return err
			}
			dels, err := s.ListPendingDeletions(cmd.Context(), &cal.ID)
			if err != nil {
				return err
			}
			if len(dirty) == 0 && len(dels) == 0 {
				continue
			}
			fmt.Printf("\n%s\n", ui.Accent(cal.Name))
			for _, t := range dirty {
				fmt.Printf("  %s %s\n", ui.Warn(string(model.StateOf(t))), t.Title)
			}
			for _, d := range dels {
				fmt.Printf("  %s %s\n", ui.Warn("pending_delete"), ui.Muted(d.UID))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, statusCmd)
}
