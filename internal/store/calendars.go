package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mattsch/caldav-tasks/internal/model"
)

// CreateCalendar inserts a new calendar and assigns its ID. A nil AccountID
// creates a local-only calendar; otherwise the owning account must exist.
func (s *Store) CreateCalendar(ctx context.Context, c *model.Calendar) error {
	if err := c.Validate(); err != nil {
		return constraintErr("invalid calendar: %v", err)
	}
	if c.AccountID != nil {
		if _, err := s.GetAccount(ctx, *c.AccountID); err != nil {
			if err == ErrNotFound {
				return constraintErr("account %d does not exist", *c.AccountID)
			}
			return err
		}
	}

	components := strings.Join(c.Components, ",")
	if components == "" {
		components = "VTODO"
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO calendars (account_id, name, url, ctag, sync_token, color, icon, components)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt(c.AccountID), c.Name, c.URL, c.CTag, c.SyncToken, c.Color, c.Icon, components,
	)
	if err != nil {
		return fmt.Errorf("failed to insert calendar: %w", err)
	}

	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read calendar id: %w", err)
	}
	return nil
}

// GetCalendar retrieves a single calendar by ID.
func (s *Store) GetCalendar(ctx context.Context, id int64) (*model.Calendar, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, account_id, name, url, ctag, sync_token, color, icon, components
		FROM calendars WHERE id = ?`, id)
	return scanCalendar(row)
}

// ListCalendars returns calendars, optionally restricted to one account.
func (s *Store) ListCalendars(ctx context.Context, accountID *int64) ([]*model.Calendar, error) {
	query := `
		SELECT id, account_id, name, url, ctag, sync_token, color, icon, components
		FROM calendars`
	var args []any
	if accountID != nil {
		query += ` WHERE account_id = ?`
		args = append(args, *accountID)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	defer rows.Close()

	var calendars []*model.Calendar
	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calendars: %w", err)
	}
	return calendars, nil
}

// UpdateCalendar rewrites a calendar's descriptive fields. Sync cursors
// (ctag, sync_token) are advanced by the merge path, not here.
func (s *Store) UpdateCalendar(ctx context.Context, c *model.Calendar) error {
	if err := c.Validate(); err != nil {
		return constraintErr("invalid calendar: %v", err)
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE calendars
		SET name = ?, url = ?, color = ?, icon = ?, components = ?
		WHERE id = ?`,
		c.Name, c.URL, c.Color, c.Icon, strings.Join(c.Components, ","), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update calendar: %w", err)
	}
	return requireRow(res)
}

// DeleteCalendar removes a calendar and its tasks, tombstoning previously
// synced tasks, in one transaction.
func (s *Store) DeleteCalendar(ctx context.Context, id int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tombstoneTasksTx(ctx, tx, `calendar_id = ?`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM calendars WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete calendar: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// scanCalendar reads one calendar row from a row scanner.
func scanCalendar(row interface{ Scan(...any) error }) (*model.Calendar, error) {
	var c model.Calendar
	var accountID sql.NullInt64
	var components string
	err := row.Scan(&c.ID, &accountID, &c.Name, &c.URL, &c.CTag, &c.SyncToken,
		&c.Color, &c.Icon, &components)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan calendar: %w", err)
	}
	c.AccountID = intPtr(accountID)
	if components != "" {
		c.Components = strings.Split(components, ",")
	}
	return &c, nil
}
