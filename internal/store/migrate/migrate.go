// Package migrate applies the versioned, forward-only schema migrations for
// the caldav-tasks store.
//
// Each migration carries a strictly increasing integer version and a forward
// SQL transformation. Apply runs every migration above the store's recorded
// version in ascending order, one transaction per migration; the recorded
// version (PRAGMA user_version) is bumped inside the same transaction, so a
// failure rolls the whole step back and aborts the run. There is no down
// path: a behavioral change is always a new version appended at the end,
// even when it rewrites a table introduced by an earlier version.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one forward schema transformation.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Version reads the store's currently applied schema version.
func Version(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Apply brings the store up to date with the given migration list.
//
// Re-running against an up-to-date store is a no-op. Any failure leaves the
// store at the last fully applied version; the caller must treat an error as
// fatal and refuse to operate on the store.
func Apply(ctx context.Context, db *sql.DB, migrations []Migration) error {
	ms := make([]Migration, len(migrations))
	copy(ms, migrations)
	sort.Slice(ms, func(i, j int) bool { return ms[i].Version < ms[j].Version })

	for i, m := range ms {
		if m.Version <= 0 {
			return fmt.Errorf("migration %q has non-positive version %d", m.Description, m.Version)
		}
		if i > 0 && ms[i-1].Version == m.Version {
			return fmt.Errorf("duplicate migration version %d", m.Version)
		}
	}

	current, err := Version(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range ms {
		if m.Version <= current {
			continue
		}
		if err := applyOne(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		current = m.Version
	}

	return nil
}

func applyOne(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}

	// PRAGMA does not accept placeholders; the version is our own integer.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("failed to record version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
