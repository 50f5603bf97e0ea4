package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/mattsch/caldav-tasks/internal/model"
	"github.com/mattsch/caldav-tasks/internal/store"
	"github.com/mattsch/caldav-tasks/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"t"},
	Short:   "Manage tasks",
}

// dateParser understands natural-language dates ("tomorrow 5pm", "next
// friday") as well as plain layouts.
var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDueDate accepts YYYY-MM-DD, RFC 3339, or natural language. The
// second return reports whether the value is a bare date (all-day).
func parseDueDate(s string) (*time.Time, bool, error) {
	if s == "" {
		return nil, false, nil
	}
	if ts, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return &ts, true, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return &ts, false, nil
	}
	r, err := dateParser.Parse(s, time.Now())
	if err != nil || r == nil {
		return nil, false, fmt.Errorf("cannot parse date %q", s)
	}
	ts := r.Time
	return &ts, false, nil
}

var taskAddCmd = &cobra.Command{
	Use:   "add TITLE...",
	Short: "Add a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		calendarID, _ := cmd.Flags().GetInt64("calendar")
		due, _ := cmd.Flags().GetString("due")
		start, _ := cmd.Flags().GetString("start")
		priority, _ := cmd.Flags().GetString("priority")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		parent, _ := cmd.Flags().GetString("parent")
		desc, _ := cmd.Flags().GetString("description")
		local, _ := cmd.Flags().GetBool("local")

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		t := &model.Task{
			Title:       strings.Join(args, " "),
			Description: desc,
			Tags:        tags,
			ParentUID:   parent,
			LocalOnly:   local,
		}

		if calendarID > 0 {
			cal, err := s.GetCalendar(cmd.Context(), calendarID)
			if err != nil {
				return err
			}
			t.CalendarID = &cal.ID
			t.AccountID = cal.AccountID
		}
		if priority != "" {
			p, err := model.ParsePriority(priority)
			if err != nil {
				return err
			}
			t.Priority = p
		}
		if t.DueDate, t.DueAllDay, err = parseDueDate(due); err != nil {
			return err
		}
		if t.StartDate, t.StartAllDay, err = parseDueDate(start); err != nil {
			return err
		}

		if err := s.CreateTask(cmd.Context(), t); err != nil {
			return err
		}
		fmt.Printf("%s %s %s\n", ui.Pass("Added"), ui.Accent(t.Title), ui.Muted(t.UID))
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := store.TaskFilter{}
		if id, _ := cmd.Flags().GetInt64("calendar"); id > 0 {
			filter.CalendarID = &id
		}
		if tag, _ := cmd.Flags().GetString("tag"); tag != "" {
			filter.Tag = tag
		}
		if search, _ := cmd.Flags().GetString("search"); search != "" {
			filter.Search = search
		}
		if all, _ := cmd.Flags().GetBool("all"); !all {
			open := false
			filter.Completed = &open
		}
		switch sortBy, _ := cmd.Flags().GetString("sort"); sortBy {
		case "due":
			filter.Sort = store.SortDue
		case "priority":
			filter.Sort = store.SortPriority
			filter.Desc = true
		case "created":
			filter.Sort = store.SortCreated
		case "", "manual":
			filter.Sort = store.SortManual
		default:
			return fmt.Errorf("unknown sort %q (manual, due, priority, created)", sortBy)
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		tasks, err := s.ListTasks(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}

		printTaskTree(tasks)
		return nil
	},
}

// printTaskTree renders tasks indented under their parents. Tasks whose
// parent is filtered out of the result set print at top level.
func printTaskTree(tasks []*model.Task) {
	byUID := make(map[string]*model.Task, len(tasks))
	for _, t := range tasks {
		byUID[t.UID] = t
	}
	children := make(map[string][]*model.Task)
	var roots []*model.Task
	for _, t := range tasks {
		if t.ParentUID != "" {
			if _, ok := byUID[t.ParentUID]; ok {
				children[t.ParentUID] = append(children[t.ParentUID], t)
				continue
			}
		}
		roots = append(roots, t)
	}

	var walk func(t *model.Task, depth int)
	walk = func(t *model.Task, depth int) {
		printTaskLine(t, depth)
		if t.IsCollapsed && len(children[t.UID]) > 0 {
			fmt.Printf("%s%s\n", strings.Repeat("  ", depth+1), ui.Muted(fmt.Sprintf("… %d hidden", len(children[t.UID]))))
			return
		}
		for _, c := range children[t.UID] {
			walk(c, depth+1)
		}
	}
	for _, t := range roots {
		walk(t, 0)
	}
}

func printTaskLine(t *model.Task, depth int) {
	box := "[ ]"
	title := t.Title
	if t.Completed {
		box = "[x]"
		title = ui.Done(title)
	}

	var extras []string
	if t.Priority != model.PriorityNone {
		extras = append(extras, ui.Warn("!"+t.Priority.String()))
	}
	if t.DueDate != nil {
		layout := "2006-01-02 15:04"
		if t.DueAllDay {
			layout = "2006-01-02"
		}
		due := t.DueDate.Local().Format(layout)
		if !t.Completed && t.DueDate.Before(time.Now()) {
			extras = append(extras, ui.Err("due "+due))
		} else {
			extras = append(extras, ui.Muted("due "+due))
		}
	}
	for _, tag := range t.Tags {
		extras = append(extras, ui.Accent("#"+tag))
	}
	if t.LocalOnly {
		extras = append(extras, ui.Muted("local"))
	} else if !t.Synced {
		extras = append(extras, ui.Warn("unsynced"))
	}

	line := fmt.Sprintf("%s%s %s", strings.Repeat("  ", depth), box, title)
	if len(extras) > 0 {
		line += "  " + strings.Join(extras, " ")
	}
	fmt.Printf("%s  %s\n", line, ui.Muted(shortUID(t.UID)))
}

func shortUID(uid string) string {
	if len(uid) > 8 {
		return uid[:8]
	}
	return uid
}

var taskShowCmd = &cobra.Command{
	Use:   "show UID",
	Short: "Show one task in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		t, err := resolveTask(cmd, s, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", ui.Accent(t.Title))
		fmt.Printf("  uid         %s\n", t.UID)
		if t.Description != "" {
			fmt.Printf("  description %s\n", t.Description)
		}
		fmt.Printf("  completed   %v\n", t.Completed)
		if t.Priority != model.PriorityNone {
			fmt.Printf("  priority    %s\n", t.Priority)
		}
		if t.DueDate != nil {
			fmt.Printf("  due         %s\n", t.DueDate.Local().Format(time.RFC1123))
		}
		if t.StartDate != nil {
			fmt.Printf("  start       %s\n", t.StartDate.Local().Format(time.RFC1123))
		}
		if len(t.Tags) > 0 {
			fmt.Printf("  tags        %s\n", strings.Join(t.Tags, ", "))
		}
		if t.ParentUID != "" {
			fmt.Printf("  parent      %s\n", t.ParentUID)
		}
		if t.URL != "" {
			fmt.Printf("  url         %s\n", t.URL)
		}
		fmt.Printf("  sync        %s\n", model.StateOf(t))
		if t.Href != "" {
			fmt.Printf("  href        %s\n", ui.Muted(t.Href))
			fmt.Printf("  etag        %s\n", ui.Muted(t.Etag))
		}
		fmt.Printf("  created     %s\n", ui.Muted(t.CreatedAt.Local().Format(time.RFC1123)))
		fmt.Printf("  updated     %s\n", ui.Muted(t.UpdatedAt.Local().Format(time.RFC1123)))
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done UID",
	Short: "Complete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setTaskDone(cmd, args[0], true) },
}

var taskReopenCmd = &cobra.Command{
	Use:   "reopen UID",
	Short: "Reopen a completed task",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setTaskDone(cmd, args[0], false) },
}

func setTaskDone(cmd *cobra.Command, arg string, done bool) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := resolveTask(cmd, s, arg)
	if err != nil {
		return err
	}
	if err := s.CompleteTask(cmd.Context(), t.UID, done); err != nil {
		return err
	}
	verb := "Completed"
	if !done {
		verb = "Reopened"
	}
	fmt.Printf("%s %s\n", ui.Pass(verb), t.Title)
	return nil
}

var taskEditCmd = &cobra.Command{
	Use:   "edit UID",
	Short: "Edit task fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		t, err := resolveTask(cmd, s, args[0])
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("title") {
			t.Title, _ = cmd.Flags().GetString("title")
		}
		if cmd.Flags().Changed("description") {
			t.Description, _ = cmd.Flags().GetString("description")
		}
		if cmd.Flags().Changed("priority") {
			raw, _ := cmd.Flags().GetString("priority")
			p, err := model.ParsePriority(raw)
			if err != nil {
				return err
			}
			t.Priority = p
		}
		if cmd.Flags().Changed("due") {
			raw, _ := cmd.Flags().GetString("due")
			if t.DueDate, t.DueAllDay, err = parseDueDate(raw); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("tag") {
			t.Tags, _ = cmd.Flags().GetStringSlice("tag")
		}
		if cmd.Flags().Changed("url") {
			t.URL, _ = cmd.Flags().GetString("url")
		}

		if err := s.UpdateTask(cmd.Context(), t); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", ui.Pass("Updated"), t.Title)
		return nil
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:     "remove UID",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		t, err := resolveTask(cmd, s, args[0])
		if err != nil {
			return err
		}
		if err := s.DeleteTask(cmd.Context(), t.UID); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", ui.Pass("Deleted"), t.Title)
		return nil
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move UID",
	Short: "Reparent or reorder a task",
	Long: `Move a task in the hierarchy or within its sibling list.

  --parent UID   make the task a subtask of UID
  --top          move the task to the top level
  --after UID    place the task right after UID among its siblings`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		top, _ := cmd.Flags().GetBool("top")
		after, _ := cmd.Flags().GetString("after")

		if parent == "" && !top && after == "" {
			return fmt.Errorf("nothing to do: pass --parent, --top, or --after")
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		t, err := resolveTask(cmd, s, args[0])
		if err != nil {
			return err
		}

		if top {
			if err := s.Reparent(cmd.Context(), t.UID, ""); err != nil {
				return err
			}
		} else if parent != "" {
			pt, err := resolveTask(cmd, s, parent)
			if err != nil {
				return err
			}
			if err := s.Reparent(cmd.Context(), t.UID, pt.UID); err != nil {
				return err
			}
		}
		if after != "" {
			at, err := resolveTask(cmd, s, after)
			if err != nil {
				return err
			}
			if err := s.PlaceAfter(cmd.Context(), t.UID, at.UID); err != nil {
				return err
			}
		}
		fmt.Printf("%s %s\n", ui.Pass("Moved"), t.Title)
		return nil
	},
}

var taskCollapseCmd = &cobra.Command{
	Use:   "collapse UID",
	Short: "Collapse a task's subtasks in list views",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setCollapsed(cmd, args[0], true) },
}

var taskExpandCmd = &cobra.Command{
	Use:   "expand UID",
	Short: "Expand a collapsed task",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setCollapsed(cmd, args[0], false) },
}

func setCollapsed(cmd *cobra.Command, arg string, collapsed bool) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := resolveTask(cmd, s, arg)
	if err != nil {
		return err
	}
	return s.SetCollapsed(cmd.Context(), t.UID, collapsed)
}

// resolveTask finds a task by full UID or unambiguous UID prefix.
func resolveTask(cmd *cobra.Command, s *store.Store, arg string) (*model.Task, error) {
	if t, err := s.GetTaskByUID(cmd.Context(), arg); err == nil {
		return t, nil
	}

	tasks, err := s.ListTasks(cmd.Context(), store.TaskFilter{})
	if err != nil {
		return nil, err
	}
	var match *model.Task
	for _, t := range tasks {
		if strings.HasPrefix(t.UID, arg) {
			if match != nil {
				return nil, fmt.Errorf("uid prefix %q is ambiguous", arg)
			}
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no task with uid %q", arg)
	}
	return match, nil
}

func init() {
	taskAddCmd.Flags().Int64P("calendar", "c", 0, "calendar id")
	taskAddCmd.Flags().String("due", "", "due date (2006-01-02, RFC 3339, or natural language)")
	taskAddCmd.Flags().String("start", "", "start date")
	taskAddCmd.Flags().StringP("priority", "p", "", "priority: low, medium, high")
	taskAddCmd.Flags().StringSliceP("tag", "t", nil, "tag (repeatable)")
	taskAddCmd.Flags().String("parent", "", "parent task uid")
	taskAddCmd.Flags().StringP("description", "d", "", "description")
	taskAddCmd.Flags().Bool("local", false, "keep this task off the server")

	taskListCmd.Flags().Int64P("calendar", "c", 0, "calendar id")
	taskListCmd.Flags().StringP("tag", "t", "", "filter by tag")
	taskListCmd.Flags().StringP("search", "s", "", "substring search in title and description")
	taskListCmd.Flags().BoolP("all", "a", false, "include completed tasks")
	taskListCmd.Flags().String("sort", "manual", "sort: manual, due, priority, created")

	taskEditCmd.Flags().String("title", "", "new title")
	taskEditCmd.Flags().StringP("description", "d", "", "new description")
	taskEditCmd.Flags().StringP("priority", "p", "", "new priority (none clears)")
	taskEditCmd.Flags().String("due", "", "new due date (empty clears)")
	taskEditCmd.Flags().StringSliceP("tag", "t", nil, "replace tags")
	taskEditCmd.Flags().String("url", "", "reference URL")

	taskMoveCmd.Flags().String("parent", "", "new parent uid")
	taskMoveCmd.Flags().Bool("top", false, "move to top level")
	taskMoveCmd.Flags().String("after", "", "place after this sibling uid")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskDoneCmd, taskReopenCmd,
		taskEditCmd, taskRemoveCmd, taskMoveCmd, taskCollapseCmd, taskExpandCmd)
	rootCmd.AddCommand(taskCmd)
}
