package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mattsch/caldav-tasks/internal/model"
)

// Reparent moves a task under a new parent (empty string = top level).
// The parent_uid relation must stay a forest: the proposed parent's ancestry
// chain is walked and the move rejected if the task appears in it.
func (s *Store) Reparent(ctx context.Context, uid, parentUID string) error {
	task, err := s.GetTaskByUID(ctx, uid)
	if err != nil {
		return err
	}

	if parentUID != "" {
		if parentUID == uid {
			return constraintErr("task cannot be its own parent")
		}
		if _, err := s.GetTaskByUID(ctx, parentUID); err != nil {
			if err == ErrNotFound {
				return constraintErr("parent %q does not exist", parentUID)
			}
			return err
		}
		cyclic, err := s.onAncestryChain(ctx, parentUID, uid)
		if err != nil {
			return err
		}
		if cyclic {
			return constraintErr("moving %q under %q would create a cycle", uid, parentUID)
		}
	}

	next, err := s.nextSortOrder(ctx, task.CalendarID, parentUID)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE tasks SET parent_uid = ?, sort_order = ? WHERE uid = ?`,
		nullString(parentUID), next, uid)
	if err != nil {
		return fmt.Errorf("failed to reparent task: %w", err)
	}
	return requireRow(res)
}

// onAncestryChain reports whether needle appears on the parent chain
// starting at uid (inclusive).
func (s *Store) onAncestryChain(ctx context.Context, uid, needle string) (bool, error) {
	return onChain(ctx, s.conn, uid, needle)
}

// onChain walks the parent chain starting at uid and reports whether needle
// appears on it, either as a task or as a dangling parent_uid reference at
// its top. parent_uid carries no foreign key, so a chain may end in a uid
// that has no row yet.
func onChain(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, uid, needle string) (bool, error) {
	var found bool
	err := q.QueryRowContext(ctx, `
		WITH RECURSIVE chain(uid, parent_uid) AS (
			SELECT uid, parent_uid FROM tasks WHERE uid = ?
			UNION
			SELECT t.uid, t.parent_uid
			FROM tasks t JOIN chain c ON t.uid = c.parent_uid
		)
		SELECT EXISTS (SELECT 1 FROM chain WHERE uid = ? OR parent_uid = ?)`,
		uid, needle, needle).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to walk ancestry chain: %w", err)
	}
	return found, nil
}

// PlaceAfter reorders a task to sit immediately after a sibling (empty
// string = front of the sibling set). Both tasks must share a parent. The
// gap between neighbors usually absorbs the move; when it is exhausted the
// whole sibling set is renumbered with a fresh stride.
func (s *Store) PlaceAfter(ctx context.Context, uid, afterUID string) error {
	task, err := s.GetTaskByUID(ctx, uid)
	if err != nil {
		return err
	}

	siblings, err := s.siblings(ctx, task)
	if err != nil {
		return err
	}

	var (
		prev, next int64
		hasNext    bool
	)
	if afterUID == "" {
		if len(siblings) > 0 {
			next = siblings[0].SortOrder
			hasNext = true
			if siblings[0].UID == uid {
				return nil
			}
		}
	} else {
		if afterUID == uid {
			return nil
		}
		idx := -1
		for i, sib := range siblings {
			if sib.UID == afterUID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return constraintErr("%q is not a sibling of %q", afterUID, uid)
		}
		prev = siblings[idx].SortOrder
		for i := idx + 1; i < len(siblings); i++ {
			if siblings[i].UID != uid {
				next = siblings[i].SortOrder
				hasNext = true
				break
			}
		}
	}

	order, ok := orderBetween(prev, next, hasNext)
	if !ok {
		if err := s.renumberSiblings(ctx, task, siblings, uid, afterUID); err != nil {
			return err
		}
		return nil
	}

	res, err := s.conn.ExecContext(ctx, `UPDATE tasks SET sort_order = ? WHERE uid = ?`, order, uid)
	if err != nil {
		return fmt.Errorf("failed to reorder task: %w", err)
	}
	return requireRow(res)
}

// orderBetween finds a sort_order strictly between prev and next, or after
// prev when there is no successor.
func orderBetween(prev, next int64, hasNext bool) (int64, bool) {
	if !hasNext {
		return prev + sortStride, true
	}
	if next-prev < 2 {
		return 0, false
	}
	return prev + (next-prev)/2, true
}

// renumberSiblings rewrites the whole sibling set with stride spacing,
// slotting uid after afterUID, in one transaction.
func (s *Store) renumberSiblings(ctx context.Context, task *model.Task, siblings []*model.Task, uid, afterUID string) error {
	ordered := make([]string, 0, len(siblings))
	if afterUID == "" {
		ordered = append(ordered, uid)
	}
	for _, sib := range siblings {
		if sib.UID == uid {
			continue
		}
		ordered = append(ordered, sib.UID)
		if sib.UID == afterUID {
			ordered = append(ordered, uid)
		}
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, u := range ordered {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET sort_order = ? WHERE uid = ?`,
			int64(i+1)*sortStride, u); err != nil {
			return fmt.Errorf("failed to renumber sibling %q: %w", u, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// siblings returns the task's sibling set (itself included) in manual order.
func (s *Store) siblings(ctx context.Context, task *model.Task) ([]*model.Task, error) {
	parent := task.ParentUID
	filter := TaskFilter{Parent: &parent, Sort: SortManual}
	if parent == "" {
		filter.CalendarID = task.CalendarID
	}
	return s.ListTasks(ctx, filter)
}

// SetCollapsed persists the presentation-only collapse flag. It touches
// neither the hierarchy nor the sync state.
func (s *Store) SetCollapsed(ctx context.Context, uid string, collapsed bool) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE tasks SET is_collapsed = ? WHERE uid = ?`, collapsed, uid)
	if err != nil {
		return fmt.Errorf("failed to set collapse state: %w", err)
	}
	return requireRow(res)
}

// RebuildSubtaskIndex regenerates each task's embedded subtasks list from
// the parent_uid relation. The relation is the source of truth; the list is
// a derived index for consumers that want children without a second query.
func (s *Store) RebuildSubtaskIndex(ctx context.Context) error {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT parent_uid, uid FROM tasks
		WHERE parent_uid IS NOT NULL
		ORDER BY parent_uid, sort_order ASC`)
	if err != nil {
		return fmt.Errorf("failed to read hierarchy: %w", err)
	}
	defer rows.Close()

	children := make(map[string][]string)
	for rows.Next() {
		var parent, uid string
		if err := rows.Scan(&parent, &uid); err != nil {
			return fmt.Errorf("failed to scan hierarchy row: %w", err)
		}
		children[parent] = append(children[parent], uid)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating hierarchy: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET subtasks = '[]'`); err != nil {
		return fmt.Errorf("failed to reset subtask index: %w", err)
	}
	for parent, uids := range children {
		b, err := json.Marshal(uids)
		if err != nil {
			return fmt.Errorf("failed to marshal subtasks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET subtasks = ? WHERE uid = ?`, string(b), parent); err != nil {
			return fmt.Errorf("failed to write subtask index: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
