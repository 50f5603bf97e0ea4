package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mattsch/caldav-tasks/internal/model"
)

// RemoteTask is one fetched resource after VTODO decoding: the decoded task
// fields plus the server-side identifiers of the resource they came from.
type RemoteTask struct {
	Href string
	Etag string
	Task model.Task
}

// MergeResult reports what one remote merge transaction did.
type MergeResult struct {
	Added   int
	Updated int
	Deleted int
	Skipped int

	// Conflicts are tasks left untouched because local dirty state collided
	// with a changed remote etag.
	Conflicts []model.Conflict
}

// MergeRemote applies a remote delta for one calendar in a single
// transaction: changed/created resources are merged task-by-task under the
// etag rule (remote wins only over clean local copies; dirty local copies
// raise conflicts and stay untouched), deleted hrefs remove clean local rows
// and confirm matching tombstones, and the calendar's ctag and sync_token
// are advanced with the same commit. A crash before commit leaves the old
// token in place, so the same delta is simply fetched again.
func (s *Store) MergeRemote(ctx context.Context, calendarID int64, changes []RemoteTask, deletedHrefs []string, ctag, syncToken string) (*MergeResult, error) {
	cal, err := s.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result := &MergeResult{}

	for _, change := range changes {
		if err := s.mergeOneTx(ctx, tx, cal, change, result); err != nil {
			return nil, err
		}
	}

	for _, href := range deletedHrefs {
		if err := s.mergeDeleteTx(ctx, tx, href, result); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE calendars SET ctag = ?, sync_token = ? WHERE id = ?`,
		ctag, syncToken, calendarID); err != nil {
		return nil, fmt.Errorf("failed to advance sync cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}
	return result, nil
}

// mergeOneTx merges a single changed resource under the etag rule.
func (s *Store) mergeOneTx(ctx context.Context, tx *sql.Tx, cal *model.Calendar, change RemoteTask, result *MergeResult) error {
	if change.Task.UID == "" {
		return constraintErr("remote resource %q has no uid", change.Href)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE uid = ?`, change.Task.UID)
	existing, err := scanTask(row)
	if err != nil && err != ErrNotFound {
		return err
	}

	if existing == nil {
		return s.insertRemoteTx(ctx, tx, cal, change, result)
	}

	if existing.Etag == change.Etag {
		result.Skipped++
		return nil
	}

	if model.StateOf(existing) == model.StateDirty {
		result.Conflicts = append(result.Conflicts, model.Conflict{
			UID:        existing.UID,
			Href:       change.Href,
			LocalEtag:  existing.Etag,
			RemoteEtag: change.Etag,
		})
		return nil
	}

	// A remote reparent obeys the same forest rule as a local one: a delta
	// that would close a parent cycle is surfaced, never written.
	if p := change.Task.ParentUID; p != "" && p != existing.ParentUID {
		cyclic, err := onChain(ctx, tx, p, existing.UID)
		if err != nil {
			return err
		}
		if cyclic {
			result.Conflicts = append(result.Conflicts, model.Conflict{
				UID:        existing.UID,
				Href:       change.Href,
				LocalEtag:  existing.Etag,
				RemoteEtag: change.Etag,
			})
			return nil
		}
	}

	t := change.Task
	tags, reminders, subtasks, err := encodeTaskLists(&t)
	if err != nil {
		return err
	}

	// Remote content overwrites a clean local copy; manual ordering and the
	// collapse flag are local-only and survive the merge.
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET
			etag = ?, href = ?, title = ?, description = ?,
			completed = ?, completed_at = ?,
			tags = ?, category = ?, priority = ?,
			start_date = ?, start_all_day = ?, due_date = ?, due_all_day = ?,
			updated_at = ?, reminders = ?, subtasks = ?, parent_uid = ?,
			url = ?, synced = 1
		WHERE uid = ?`,
		change.Etag, change.Href, t.Title, t.Description,
		t.Completed, timeToNullString(t.CompletedAt),
		tags, t.Category, int(t.Priority),
		timeToNullString(t.StartDate), t.StartAllDay,
		timeToNullString(t.DueDate), t.DueAllDay,
		time.Now().UTC().Format(time.RFC3339), reminders, subtasks,
		nullString(t.ParentUID), t.URL,
		t.UID,
	)
	if err != nil {
		return fmt.Errorf("failed to merge task %q: %w", t.UID, err)
	}
	result.Updated++
	return nil
}

// insertRemoteTx creates a local row for a resource first seen remotely.
func (s *Store) insertRemoteTx(ctx context.Context, tx *sql.Tx, cal *model.Calendar, change RemoteTask, result *MergeResult) error {
	t := change.Task
	t.Etag = change.Etag
	t.Href = change.Href
	t.CalendarID = &cal.ID
	t.AccountID = cal.AccountID
	t.Synced = true
	t.LocalOnly = false
	t.SetDefaults()

	// Resources can arrive before their parents, so a local row may already
	// hold a dangling parent_uid pointing at this uid. Landing the row with
	// its own parent link intact would close a cycle; drop the link instead.
	if t.ParentUID != "" {
		cyclic, err := onChain(ctx, tx, t.ParentUID, t.UID)
		if err != nil {
			return err
		}
		if cyclic || t.ParentUID == t.UID {
			t.ParentUID = ""
		}
	}

	// SUMMARY is optional in a VTODO, so a resource can decode into a task
	// that fails validation. One bad resource must not wedge the calendar:
	// skip it so the cursor still advances.
	if err := t.Validate(); err != nil {
		result.Skipped++
		return nil
	}

	var max int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), 0) FROM tasks WHERE calendar_id = ?`,
		cal.ID).Scan(&max); err != nil {
		return fmt.Errorf("failed to compute sort order: %w", err)
	}
	t.SortOrder = max + sortStride

	args, err := taskArgs(&t)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (uid, etag, href, title, description, completed, completed_at,
			tags, category, priority, start_date, start_all_day, due_date, due_all_day,
			created_at, updated_at, reminders, subtasks, parent_uid, is_collapsed,
			sort_order, account_id, calendar_id, synced, local_only, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to insert remote task %q: %w", t.UID, err)
	}
	result.Added++
	return nil
}

// mergeDeleteTx applies a remote deletion: a clean local row is removed, a
// dirty one is surfaced as a conflict instead, and a matching tombstone is
// treated as confirmation of our own pending delete.
func (s *Store) mergeDeleteTx(ctx context.Context, tx *sql.Tx, href string, result *MergeResult) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM pending_deletions WHERE href = ?`, href)
	if err != nil {
		return fmt.Errorf("failed to confirm tombstone: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE href = ?`, href)
	existing, err := scanTask(row)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	if model.StateOf(existing) == model.StateDirty {
		result.Conflicts = append(result.Conflicts, model.Conflict{
			UID:       existing.UID,
			Href:      href,
			LocalEtag: existing.Etag,
		})
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE uid = ?`, existing.UID); err != nil {
		return fmt.Errorf("failed to delete task %q: %w", existing.UID, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET parent_uid = NULL WHERE parent_uid = ?`, existing.UID); err != nil {
		return fmt.Errorf("failed to detach children: %w", err)
	}
	result.Deleted++
	return nil
}
