package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mattsch/caldav-tasks/internal/model"
)

// CreateAccount inserts a new account and assigns its ID.
func (s *Store) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return constraintErr("invalid account: %v", err)
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO accounts (name, server_url, username, password, server_type, last_sync, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.ServerURL, a.Username, a.Password, a.ServerType,
		timeToNullString(a.LastSync), a.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read account id: %w", err)
	}
	return nil
}

// GetAccount retrieves a single account by ID.
func (s *Store) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, name, server_url, username, password, server_type, last_sync, is_active
		FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// ListAccounts returns all accounts, optionally only active ones.
func (s *Store) ListAccounts(ctx context.Context, activeOnly bool) ([]*model.Account, error) {
	query := `
		SELECT id, name, server_url, username, password, server_type, last_sync, is_active
		FROM accounts`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount rewrites an account's configuration fields.
func (s *Store) UpdateAccount(ctx context.Context, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return constraintErr("invalid account: %v", err)
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE accounts
		SET name = ?, server_url = ?, username = ?, password = ?, server_type = ?, is_active = ?
		WHERE id = ?`,
		a.Name, a.ServerURL, a.Username, a.Password, a.ServerType, a.IsActive, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRow(res)
}

// SetAccountActive soft-enables or disables an account.
func (s *Store) SetAccountActive(ctx context.Context, id int64, active bool) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE accounts SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to set account active: %w", err)
	}
	return requireRow(res)
}

// TouchAccountSynced records a successful sync pass for the account.
func (s *Store) TouchAccountSynced(ctx context.Context, id int64, at time.Time) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE accounts SET last_sync = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}
	return requireRow(res)
}

// DeleteAccount removes an account, its calendars and their tasks. Tasks
// that had reached the server (non-empty href, not local-only) leave
// pending-deletion tombstones so the next sync pass can confirm the remote
// deletes; everything happens in one transaction.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tombstoneTasksTx(ctx, tx, `account_id = ?`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// scanAccount reads one account row from a row scanner.
func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var serverType, lastSync sql.NullString
	err := row.Scan(&a.ID, &a.Name, &a.ServerURL, &a.Username, &a.Password,
		&serverType, &lastSync, &a.IsActive)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.ServerType = serverType.String
	a.LastSync = nullStringToTime(lastSync)
	return &a, nil
}

// requireRow converts a zero-row update into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
