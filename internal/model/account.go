package model

import (
	"fmt"
	"time"
)

// Account is one configured CalDAV server credential set.
type Account struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	ServerURL  string     `json:"server_url"`
	Username   string     `json:"username"`
	Password   string     `json:"-"`
	ServerType string     `json:"server_type,omitempty"`
	LastSync   *time.Time `json:"last_sync,omitempty"`
	IsActive   bool       `json:"is_active"`
}

// Validate checks required account fields.
func (a *Account) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if a.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if a.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

// Calendar is one remote collection under an Account. A nil AccountID marks
// a local-only calendar that is never reconciled with a server.
type Calendar struct {
	ID         int64    `json:"id"`
	AccountID  *int64   `json:"account_id,omitempty"`
	Name       string   `json:"name"`
	URL        string   `json:"url,omitempty"`
	CTag       string   `json:"ctag,omitempty"`
	SyncToken  string   `json:"sync_token,omitempty"`
	Color      string   `json:"color,omitempty"`
	Icon       string   `json:"icon,omitempty"`
	Components []string `json:"components,omitempty"`
}

// Validate checks required calendar fields.
func (c *Calendar) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.AccountID != nil && c.URL == "" {
		return fmt.Errorf("url is required for a remote calendar")
	}
	return nil
}

// Tag is a named, colored label shared across all tasks.
type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// Validate checks required tag fields.
func (t *Tag) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// PendingDeletion is a tombstone for a previously synced task that was
// deleted locally before the deletion could be confirmed against the remote.
type PendingDeletion struct {
	UID        string `json:"uid"`
	Href       string `json:"href"`
	AccountID  *int64 `json:"account_id,omitempty"`
	CalendarID *int64 `json:"calendar_id,omitempty"`
}

// UIState is the singleton persisted view state. It shares the store's
// transactional boundary but carries no sync-relevant data.
type UIState struct {
	SelectedAccountID  *int64 `json:"selected_account_id,omitempty"`
	SelectedCalendarID *int64 `json:"selected_calendar_id,omitempty"`
	SortMode           string `json:"sort_mode"`
	SortDesc           bool   `json:"sort_desc"`
	ShowCompleted      bool   `json:"show_completed"`
}
