package store

import (
	"context"
	"fmt"

	"github.com/mattsch/caldav-tasks/internal/model"
)

// CreateTag inserts a new tag. Tag names are unique across the store.
func (s *Store) CreateTag(ctx context.Context, t *model.Tag) error {
	if err := t.Validate(); err != nil {
		return constraintErr("invalid tag: %v", err)
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO tags (name, color, icon) VALUES (?, ?, ?)`,
		t.Name, t.Color, t.Icon)
	if err != nil {
		if isUniqueViolation(err) {
			return constraintErr("duplicate tag %q", t.Name)
		}
		return fmt.Errorf("failed to insert tag: %w", err)
	}

	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read tag id: %w", err)
	}
	return nil
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]*model.Tag, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, name, color, icon FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.Icon); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

// UpdateTag rewrites a tag's fields.
func (s *Store) UpdateTag(ctx context.Context, t *model.Tag) error {
	if err := t.Validate(); err != nil {
		return constraintErr("invalid tag: %v", err)
	}
	res, err := s.conn.ExecContext(ctx,
		`UPDATE tags SET name = ?, color = ?, icon = ? WHERE id = ?`,
		t.Name, t.Color, t.Icon, t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return constraintErr("duplicate tag %q", t.Name)
		}
		return fmt.Errorf("failed to update tag: %w", err)
	}
	return requireRow(res)
}

// DeleteTag removes a tag definition. Tasks keep their embedded tag names;
// the tags table only carries presentation metadata.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	return requireRow(res)
}
