package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mattsch/caldav-tasks/internal/model"
)

// GetUIState reads the singleton view-state row, returning defaults when it
// has never been written.
func (s *Store) GetUIState(ctx context.Context) (*model.UIState, error) {
	var st model.UIState
	var accountID, calendarID sql.NullInt64
	err := s.conn.QueryRowContext(ctx, `
		SELECT selected_account_id, selected_calendar_id, sort_mode, sort_desc, show_completed
		FROM ui_state WHERE id = 1`).
		Scan(&accountID, &calendarID, &st.SortMode, &st.SortDesc, &st.ShowCompleted)
	if err == sql.ErrNoRows {
		return &model.UIState{SortMode: "manual"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ui state: %w", err)
	}
	st.SelectedAccountID = intPtr(accountID)
	st.SelectedCalendarID = intPtr(calendarID)
	return &st, nil
}

// PutUIState upserts the singleton view-state row. The id = 1 constraint
// makes any second row a hard schema violation, not an application accident.
func (s *Store) PutUIState(ctx context.Context, st *model.UIState) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO ui_state (id, selected_account_id, selected_calendar_id, sort_mode, sort_desc, show_completed)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			selected_account_id = excluded.selected_account_id,
			selected_calendar_id = excluded.selected_calendar_id,
			sort_mode = excluded.sort_mode,
			sort_desc = excluded.sort_desc,
			show_completed = excluded.show_completed`,
		nullInt(st.SelectedAccountID), nullInt(st.SelectedCalendarID),
		st.SortMode, st.SortDesc, st.ShowCompleted)
	if err != nil {
		return fmt.Errorf("failed to write ui state: %w", err)
	}
	return nil
}
