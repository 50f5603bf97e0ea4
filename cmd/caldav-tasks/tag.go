package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mattsch/caldav-tasks/internal/model"
	"github.com/mattsch/caldav-tasks/internal/ui"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		color, _ := cmd.Flags().GetString("color")

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		tag := &model.Tag{Name: args[0], Color: color}
		if err := s.CreateTag(cmd.Context(), tag); err != nil {
			return err
		}
		fmt.Printf("%s tag %s (id %d)\n", ui.Pass("Added"), ui.Accent(tag.Name), tag.ID)
		return nil
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		tags, err := s.ListTags(cmd.Context())
		if err != nil {
			return err
		}
		if len(tags) == 0 {
			fmt.Println("No tags.")
			return nil
		}
		for _, t := range tags {
			fmt.Printf("%3d  %s\n", t.ID, ui.Accent("#"+t.Name))
		}
		return nil
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Remove a tag (tasks keep the tag name)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tag id %q", args[0])
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.DeleteTag(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("%s tag %d\n", ui.Pass("Removed"), id)
		return nil
	},
}

func init() {
	tagAddCmd.Flags().String("color", "", "display color")
	tagCmd.AddCommand(tagAddCmd, tagListCmd, tagRemoveCmd)
	rootCmd.AddCommand(tagCmd)
}
