package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mattsch/caldav-tasks/internal/model"
)

// tombstoneTasksTx inserts pending-deletion tombstones for every task
// matching the WHERE clause that had reached the server: a non-empty href
// and not local-only. Tasks that never left the machine produce nothing.
func tombstoneTasksTx(ctx context.Context, tx *sql.Tx, where string, args ...any) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_deletions (uid, href, account_id, calendar_id)
		SELECT uid, href, account_id, calendar_id FROM tasks
		WHERE href IS NOT NULL AND href != '' AND local_only = 0 AND `+where,
		args...)
	if err != nil {
		return fmt.Errorf("failed to tombstone tasks: %w", err)
	}
	return nil
}

// ListPendingDeletions returns tombstones awaiting remote confirmation,
// optionally restricted to one calendar.
func (s *Store) ListPendingDeletions(ctx context.Context, calendarID *int64) ([]*model.PendingDeletion, error) {
	query := `SELECT uid, href, account_id, calendar_id FROM pending_deletions`
	var args []any
	if calendarID != nil {
		query += ` WHERE calendar_id = ?`
		args = append(args, *calendarID)
	}
	query += ` ORDER BY uid ASC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deletions: %w", err)
	}
	defer rows.Close()

	var out []*model.PendingDeletion
	for rows.Next() {
		var pd model.PendingDeletion
		var accountID, calID sql.NullInt64
		if err := rows.Scan(&pd.UID, &pd.Href, &accountID, &calID); err != nil {
			return nil, fmt.Errorf("failed to scan pending deletion: %w", err)
		}
		pd.AccountID = intPtr(accountID)
		pd.CalendarID = intPtr(calID)
		out = append(out, &pd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending deletions: %w", err)
	}
	return out, nil
}

// ConfirmDeletion drops a tombstone once the remote deletion has been
// acknowledged (successful DELETE or 404 on the next fetch). Idempotent.
func (s *Store) ConfirmDeletion(ctx context.Context, uid string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM pending_deletions WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("failed to confirm deletion: %w", err)
	}
	return nil
}
