package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mattsch/caldav-tasks/internal/model"
	"github.com/mattsch/caldav-tasks/internal/ui"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage CalDAV accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a CalDAV account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("url")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		serverType, _ := cmd.Flags().GetString("type")

		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = string(raw)
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		acct := &model.Account{
			Name:       args[0],
			ServerURL:  serverURL,
			Username:   username,
			Password:   password,
			ServerType: serverType,
			IsActive:   true,
		}
		if err := s.CreateAccount(cmd.Context(), acct); err != nil {
			return err
		}

		fmt.Printf("%s account %s (id %d)\n", ui.Pass("Added"), ui.Accent(acct.Name), acct.ID)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		accounts, err := s.ListAccounts(cmd.Context(), false)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts configured.")
			return nil
		}

		for _, a := range accounts {
			state := ui.Pass("active")
			if !a.IsActive {
				state = ui.Muted("disabled")
			}
			last := "never"
			if a.LastSync != nil {
				last = a.LastSync.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("%3d  %s  %s  %s  last sync %s\n",
				a.ID, ui.Accent(a.Name), a.ServerURL, state, ui.Muted(last))
		}
		return nil
	},
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove an account and all its calendars and tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid account id %q", args[0])
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.DeleteAccount(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("%s account %d\n", ui.Pass("Removed"), id)
		return nil
	},
}

var accountEnableCmd = &cobra.Command{
	Use:   "enable ID",
	Short: "Enable an account for syncing",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAccountActive(cmd, args[0], true) },
}

var accountDisableCmd = &cobra.Command{
	Use:   "disable ID",
	Short: "Stop syncing an account without deleting its data",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAccountActive(cmd, args[0], false) },
}

func setAccountActive(cmd *cobra.Command, arg string, active bool) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid account id %q", arg)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SetAccountActive(cmd.Context(), id, active); err != nil {
		return err
	}
	verb := "Enabled"
	if !active {
		verb = "Disabled"
	}
	fmt.Printf("%s account %d\n", ui.Pass(verb), id)
	return nil
}

func init() {
	accountAddCmd.Flags().String("url", "", "CalDAV server URL (required)")
	accountAddCmd.Flags().String("username", "", "account username (required)")
	accountAddCmd.Flags().String("password", "", "account password (prompted if omitted)")
	accountAddCmd.Flags().String("type", "", "server type hint (nextcloud, radicale, ...)")
	_ = accountAddCmd.MarkFlagRequired("url")
	_ = accountAddCmd.MarkFlagRequired("username")

	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountRemoveCmd, accountEnableCmd, accountDisableCmd)
	rootCmd.AddCommand(accountCmd)
}
