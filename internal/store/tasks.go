package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattsch/caldav-tasks/internal/model"
)

// sortStride is the gap left between neighboring sort_order values so a
// reorder can usually slot between two siblings without renumbering.
const sortStride = 1024

// TaskSort selects the ordering of task listings.
type TaskSort int

const (
	SortManual TaskSort = iota
	SortDue
	SortPriority
	SortCreated
)

// TaskFilter configures ListTasks.
type TaskFilter struct {
	// CalendarID restricts to one calendar (nil = all).
	CalendarID *int64
	// AccountID restricts to one account (nil = all).
	AccountID *int64
	// Tag restricts to tasks carrying the given tag.
	Tag string
	// Completed restricts by completion state (nil = both).
	Completed *bool
	// Parent restricts to children of the given UID; the empty string
	// selects top-level tasks only (nil = all levels).
	Parent *string
	// Search is a free-text match over title and description.
	Search string

	Sort TaskSort
	Desc bool

	Limit  int
	Offset int
}

const taskColumns = `id, uid, etag, href, title, description, completed, completed_at,
	tags, category, priority, start_date, start_all_day, due_date, due_all_day,
	created_at, updated_at, reminders, subtasks, parent_uid, is_collapsed,
	sort_order, account_id, calendar_id, synced, local_only, url`

// CreateTask inserts a new task. UID and timestamps are assigned if missing;
// a fresh local task starts unsynced. The account/calendar pairing and the
// parent reference are checked at the boundary.
func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	t.SetDefaults()
	if err := t.Validate(); err != nil {
		return constraintErr("invalid task: %v", err)
	}
	if err := s.checkTaskRefs(ctx, t); err != nil {
		return err
	}

	if t.SortOrder == 0 {
		next, err := s.nextSortOrder(ctx, t.CalendarID, t.ParentUID)
		if err != nil {
			return err
		}
		t.SortOrder = next
	}

	args, err := taskArgs(t)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO tasks (uid, etag, href, title, description, completed, completed_at,
			tags, category, priority, start_date, start_all_day, due_date, due_all_day,
			created_at, updated_at, reminders, subtasks, parent_uid, is_collapsed,
			sort_order, account_id, calendar_id, synced, local_only, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return constraintErr("duplicate uid %q", t.UID)
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}

	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read task id: %w", err)
	}
	return nil
}

// UpdateTask rewrites a task's content fields from a local edit. The task is
// marked unsynced and its modification timestamp advanced; etag, href and
// sync bookkeeping are untouched (those belong to the sync engine).
func (s *Store) UpdateTask(ctx context.Context, t *model.Task) error {
	t.Touch()
	t.Synced = false
	if err := t.Validate(); err != nil {
		return constraintErr("invalid task: %v", err)
	}
	if err := s.checkTaskRefs(ctx, t); err != nil {
		return err
	}

	tags, reminders, subtasks, err := encodeTaskLists(t)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, completed = ?, completed_at = ?,
			tags = ?, category = ?, priority = ?,
			start_date = ?, start_all_day = ?, due_date = ?, due_all_day = ?,
			updated_at = ?, reminders = ?, subtasks = ?,
			account_id = ?, calendar_id = ?, local_only = ?, url = ?,
			synced = 0
		WHERE uid = ?`,
		t.Title, t.Description, t.Completed, timeToNullString(t.CompletedAt),
		tags, t.Category, int(t.Priority),
		timeToNullString(t.StartDate), t.StartAllDay, timeToNullString(t.DueDate), t.DueAllDay,
		t.UpdatedAt.UTC().Format(time.RFC3339), reminders, subtasks,
		nullInt(t.AccountID), nullInt(t.CalendarID), t.LocalOnly, t.URL,
		t.UID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireRow(res)
}

// CompleteTask sets or clears the completion pair for a task.
func (s *Store) CompleteTask(ctx context.Context, uid string, done bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var completedAt sql.NullString
	if done {
		completedAt = sql.NullString{String: now, Valid: true}
	}
	res, err := s.conn.ExecContext(ctx, `
		UPDATE tasks SET completed = ?, completed_at = ?, updated_at = ?, synced = 0
		WHERE uid = ?`,
		done, completedAt, now, uid)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return requireRow(res)
}

// GetTask retrieves a single task by local ID.
func (s *Store) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// GetTaskByUID retrieves a single task by its stable UID.
func (s *Store) GetTaskByUID(ctx context.Context, uid string) (*model.Task, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE uid = ?`, uid)
	return scanTask(row)
}

// ListTasks retrieves tasks matching the filter.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]*model.Task, error) {
	var conditions []string
	var args []any

	if filter.CalendarID != nil {
		conditions = append(conditions, "t.calendar_id = ?")
		args = append(args, *filter.CalendarID)
	}
	if filter.AccountID != nil {
		conditions = append(conditions, "t.account_id = ?")
		args = append(args, *filter.AccountID)
	}
	if filter.Completed != nil {
		conditions = append(conditions, "t.completed = ?")
		args = append(args, *filter.Completed)
	}
	if filter.Parent != nil {
		if *filter.Parent == "" {
			conditions = append(conditions, "t.parent_uid IS NULL")
		} else {
			conditions = append(conditions, "t.parent_uid = ?")
			args = append(args, *filter.Parent)
		}
	}
	if filter.Search != "" {
		conditions = append(conditions, "(t.title LIKE ? OR t.description LIKE ?)")
		needle := "%" + filter.Search + "%"
		args = append(args, needle, needle)
	}

	selectClause := "SELECT"
	if filter.Tag != "" {
		selectClause += " DISTINCT"
	}

	query := selectClause + " " + prefixColumns(taskColumns, "t.") + " FROM tasks t"
	if filter.Tag != "" {
		query += `, json_each(t.tags)`
		conditions = append(conditions, "json_each.value = ?")
		args = append(args, filter.Tag)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	dir := "ASC"
	if filter.Desc {
		dir = "DESC"
	}
	switch filter.Sort {
	case SortDue:
		query += " ORDER BY t.due_date IS NULL, t.due_date " + dir
	case SortPriority:
		query += " ORDER BY t.priority " + dir + ", t.created_at ASC"
	case SortCreated:
		query += " ORDER BY t.created_at " + dir
	default:
		query += " ORDER BY t.sort_order " + dir
	}

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// ListUnsynced returns the tasks in a calendar awaiting a push: dirty edits
// and pending creates, never local-only tasks.
func (s *Store) ListUnsynced(ctx context.Context, calendarID int64) ([]*model.Task, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE calendar_id = ? AND synced = 0 AND local_only = 0
		ORDER BY id ASC`, calendarID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// MarkTaskSynced records a successful push: the server-issued etag and href
// are stored and the task returns to the synced state.
func (s *Store) MarkTaskSynced(ctx context.Context, uid, etag, href string) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE tasks SET etag = ?, href = ?, synced = 1 WHERE uid = ?`,
		etag, href, uid)
	if err != nil {
		return fmt.Errorf("failed to mark task synced: %w", err)
	}
	return requireRow(res)
}

// DeleteTask removes a task. A task that reached the server leaves a
// pending-deletion tombstone in the same transaction; a local-only or
// never-pushed task just disappears.
func (s *Store) DeleteTask(ctx context.Context, uid string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tombstoneTasksTx(ctx, tx, `uid = ?`, uid); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE uid = ?`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	// Children of the deleted task become top-level; the hierarchy stays a
	// forest either way.
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET parent_uid = NULL WHERE parent_uid = ?`, uid); err != nil {
		return fmt.Errorf("failed to detach children: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// TaskCounts summarizes the store for the status surface.
type TaskCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Unsynced  int `json:"unsynced"`
	Tombstone int `json:"pending_deletions"`
}

// CountTasks reports totals for the notification surface.
func (s *Store) CountTasks(ctx context.Context) (*TaskCounts, error) {
	var c TaskCounts
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(completed), 0),
			COALESCE(SUM(CASE WHEN synced = 0 AND local_only = 0 THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(*) FROM pending_deletions)
		FROM tasks`).Scan(&c.Total, &c.Completed, &c.Unsynced, &c.Tombstone)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	return &c, nil
}

// checkTaskRefs enforces the referential invariants at the boundary: the
// account/calendar pairing must be consistent and a parent must exist.
func (s *Store) checkTaskRefs(ctx context.Context, t *model.Task) error {
	if t.AccountID != nil {
		cal, err := s.GetCalendar(ctx, *t.CalendarID)
		if err != nil {
			if err == ErrNotFound {
				return constraintErr("calendar %d does not exist", *t.CalendarID)
			}
			return err
		}
		if cal.AccountID == nil || *cal.AccountID != *t.AccountID {
			return constraintErr("calendar %d is not owned by account %d", *t.CalendarID, *t.AccountID)
		}
	} else if t.CalendarID != nil {
		if _, err := s.GetCalendar(ctx, *t.CalendarID); err != nil {
			if err == ErrNotFound {
				return constraintErr("calendar %d does not exist", *t.CalendarID)
			}
			return err
		}
	}

	if t.ParentUID != "" {
		parent, err := s.GetTaskByUID(ctx, t.ParentUID)
		if err != nil {
			if err == ErrNotFound {
				return constraintErr("parent %q does not exist", t.ParentUID)
			}
			return err
		}
		if parent.UID == t.UID {
			return constraintErr("task cannot be its own parent")
		}
	}
	return nil
}

// nextSortOrder returns a sort_order placing a new task after its siblings.
func (s *Store) nextSortOrder(ctx context.Context, calendarID *int64, parentUID string) (int64, error) {
	query := `SELECT COALESCE(MAX(sort_order), 0) FROM tasks WHERE `
	var args []any
	if parentUID != "" {
		query += `parent_uid = ?`
		args = append(args, parentUID)
	} else if calendarID != nil {
		query += `parent_uid IS NULL AND calendar_id = ?`
		args = append(args, *calendarID)
	} else {
		query += `parent_uid IS NULL AND calendar_id IS NULL`
	}

	var max int64
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to compute sort order: %w", err)
	}
	return max + sortStride, nil
}

// taskArgs flattens a task into the insert argument list (uid onward).
func taskArgs(t *model.Task) ([]any, error) {
	tags, reminders, subtasks, err := encodeTaskLists(t)
	if err != nil {
		return nil, err
	}
	return []any{
		t.UID, nullString(t.Etag), nullString(t.Href), t.Title, t.Description,
		t.Completed, timeToNullString(t.CompletedAt),
		tags, t.Category, int(t.Priority),
		timeToNullString(t.StartDate), t.StartAllDay,
		timeToNullString(t.DueDate), t.DueAllDay,
		t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339),
		reminders, subtasks,
		nullString(t.ParentUID), t.IsCollapsed, t.SortOrder,
		nullInt(t.AccountID), nullInt(t.CalendarID),
		t.Synced, t.LocalOnly, t.URL,
	}, nil
}

// encodeTaskLists serializes the embedded list fields as JSON arrays.
func encodeTaskLists(t *model.Task) (tags, reminders, subtasks string, err error) {
	for _, enc := range []struct {
		name string
		v    []string
		out  *string
	}{
		{"tags", t.Tags, &tags},
		{"reminders", t.Reminders, &reminders},
		{"subtasks", t.Subtasks, &subtasks},
	} {
		v := enc.v
		if v == nil {
			v = []string{}
		}
		b, merr := json.Marshal(v)
		if merr != nil {
			return "", "", "", fmt.Errorf("failed to marshal %s: %w", enc.name, merr)
		}
		*enc.out = string(b)
	}
	return tags, reminders, subtasks, nil
}

// scanTask reads one task row from a row scanner.
func scanTask(row interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var etag, href, completedAt, startDate, dueDate, parentUID, url sql.NullString
	var tagsJSON, remindersJSON, subtasksJSON string
	var createdAt, updatedAt string
	var accountID, calendarID sql.NullInt64
	var priority int

	err := row.Scan(
		&t.ID, &t.UID, &etag, &href, &t.Title, &t.Description,
		&t.Completed, &completedAt,
		&tagsJSON, &t.Category, &priority,
		&startDate, &t.StartAllDay, &dueDate, &t.DueAllDay,
		&createdAt, &updatedAt,
		&remindersJSON, &subtasksJSON,
		&parentUID, &t.IsCollapsed, &t.SortOrder,
		&accountID, &calendarID,
		&t.Synced, &t.LocalOnly, &url,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	t.Etag = etag.String
	t.Href = href.String
	t.ParentUID = parentUID.String
	t.URL = url.String
	t.Priority = model.Priority(priority)
	t.CompletedAt = nullStringToTime(completedAt)
	t.StartDate = nullStringToTime(startDate)
	t.DueDate = nullStringToTime(dueDate)
	t.AccountID = intPtr(accountID)
	t.CalendarID = intPtr(calendarID)

	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		t.UpdatedAt = ts
	}

	for _, dec := range []struct {
		name string
		raw  string
		out  *[]string
	}{
		{"tags", tagsJSON, &t.Tags},
		{"reminders", remindersJSON, &t.Reminders},
		{"subtasks", subtasksJSON, &t.Subtasks},
	} {
		if dec.raw == "" || dec.raw == "null" {
			*dec.out = []string{}
			continue
		}
		if err := json.Unmarshal([]byte(dec.raw), dec.out); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", dec.name, err)
		}
	}

	return &t, nil
}

// scanTasks reads all task rows from a query result.
func scanTasks(rows *sql.Rows) ([]*model.Task, error) {
	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// nullString maps the empty string to SQL NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// prefixColumns qualifies each column in a comma-separated list.
func prefixColumns(cols, prefix string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// isUniqueViolation reports whether an error is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
