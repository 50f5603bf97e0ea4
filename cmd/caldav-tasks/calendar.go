package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mattsch/caldav-tasks/internal/model"
	"github.com/mattsch/caldav-tasks/internal/ui"
)

var calendarCmd = &cobra.Command{
	Use:     "calendar",
	Aliases: []string{"cal"},
	Short:   "Manage calendars",
}

var calendarAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a calendar",
	Long: `Add a calendar. With --account and --url the calendar is bound to a
remote CalDAV collection; without them it is a local-only calendar that
never syncs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, _ := cmd.Flags().GetInt64("account")
		url, _ := cmd.Flags().GetString("url")
		color, _ := cmd.Flags().GetString("color")

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		cal := &model.Calendar{Name: args[0], URL: url, Color: color}
		if accountID > 0 {
			cal.AccountID = &accountID
		}
		if err := s.CreateCalendar(cmd.Context(), cal); err != nil {
			return err
		}

		kind := "local"
		if cal.AccountID != nil {
			kind = "remote"
		}
		fmt.Printf("%s %s calendar %s (id %d)\n", ui.Pass("Added"), kind, ui.Accent(cal.Name), cal.ID)
		return nil
	},
}

var calendarListCmd = &cobra.Command{
	Use:   "list",
	Short: "List calendars",
	RunE: func(cmd *cobra.Command, args []string) error {
		var accountID *int64
		if id, _ := cmd.Flags().GetInt64("account"); id > 0 {
			accountID = &id
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		cals, err := s.ListCalendars(cmd.Context(), accountID)
		if err != nil {
			return err
		}
		if len(cals) == 0 {
			fmt.Println("No calendars.")
			return nil
		}

		for _, c := range cals {
			origin := ui.Muted("local")
			if c.AccountID != nil {
				origin = ui.Muted(fmt.Sprintf("account %d", *c.AccountID))
			}
			fmt.Printf("%3d  %s  %s\n", c.ID, ui.Accent(c.Name), origin)
		}
		return nil
	},
}

var calendarRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a calendar and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid calendar id %q", args[0])
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.DeleteCalendar(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("%s calendar %d\n", ui.Pass("Removed"), id)
		return nil
	},
}

func init() {
	calendarAddCmd.Flags().Int64("account", 0, "owning account id (omit for a local calendar)")
	calendarAddCmd.Flags().String("url", "", "remote collection URL (required with --account)")
	calendarAddCmd.Flags().String("color", "", "display color")

	calendarListCmd.Flags().Int64("account", 0, "only calendars of this account")

	calendarCmd.AddCommand(calendarAddCmd, calendarListCmd, calendarRemoveCmd)
	rootCmd.AddCommand(calendarCmd)
}
