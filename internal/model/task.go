// Package model provides the entity types for the caldav-tasks store.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority is the task priority level.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "none"
	}
}

// ParsePriority converts a priority name to its Priority value.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "", "none":
		return PriorityNone, nil
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return PriorityNone, fmt.Errorf("unknown priority %q", s)
}

// Task is the core synchronized unit, mapping to a CalDAV VTODO.
//
// UID is the stable join key with the remote object and is immutable once
// assigned. Etag and Href stay empty until the server assigns them on the
// first successful push. AccountID and CalendarID are nullable: a task may
// exist purely locally before being assigned to a remote calendar, or after
// its calendar was removed while awaiting reconciliation.
type Task struct {
	ID  int64  `json:"id"`
	UID string `json:"uid"`

	Etag string `json:"etag,omitempty"`
	Href string `json:"href,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Tags     []string `json:"tags,omitempty"`
	Category string   `json:"category,omitempty"`
	Priority Priority `json:"priority"`

	StartDate   *time.Time `json:"start_date,omitempty"`
	StartAllDay bool       `json:"start_all_day,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	DueAllDay   bool       `json:"due_all_day,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Reminders []string `json:"reminders,omitempty"`

	// Subtasks is a derived index of child UIDs. The parent_uid relation is
	// the source of truth; this list is rebuildable and never authoritative.
	Subtasks []string `json:"subtasks,omitempty"`

	ParentUID   string `json:"parent_uid,omitempty"`
	IsCollapsed bool   `json:"is_collapsed,omitempty"`
	SortOrder   int64  `json:"sort_order"`

	AccountID  *int64 `json:"account_id,omitempty"`
	CalendarID *int64 `json:"calendar_id,omitempty"`

	Synced    bool `json:"synced"`
	LocalOnly bool `json:"local_only,omitempty"`

	URL string `json:"url,omitempty"`
}

// NewUID returns a fresh globally unique task identifier.
func NewUID() string {
	return uuid.New().String()
}

// Validate checks the task's field-level invariants.
func (t *Task) Validate() error {
	if t.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if t.Priority < PriorityNone || t.Priority > PriorityHigh {
		return fmt.Errorf("priority out of range (got %d)", t.Priority)
	}
	if t.Completed != (t.CompletedAt != nil) {
		return fmt.Errorf("completed_at must be set exactly when completed is true")
	}
	if t.AccountID != nil && t.CalendarID == nil {
		return fmt.Errorf("account_id set without calendar_id")
	}
	if t.ParentUID == t.UID && t.UID != "" {
		return fmt.Errorf("task cannot be its own parent")
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults fills in UID and timestamps for a freshly created task.
func (t *Task) SetDefaults() {
	if t.UID == "" {
		t.UID = NewUID()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Reminders == nil {
		t.Reminders = []string{}
	}
	if t.Subtasks == nil {
		t.Subtasks = []string{}
	}
}

// SetCompleted flips the completion flag, keeping completed_at paired with it.
func (t *Task) SetCompleted(done bool) {
	t.Completed = done
	if done {
		now := time.Now().UTC()
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
}

// Touch advances the modification timestamp.
func (t *Task) Touch() {
	t.UpdatedAt = time.Now().UTC()
}
