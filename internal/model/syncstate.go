package model

// SyncState classifies a task's reconciliation status against the remote.
type SyncState string

const (
	// StateLocalOnly marks a task that must never be pushed to a server.
	StateLocalOnly SyncState = "local_only"

	// StatePendingCreate marks a task awaiting its first push (no href yet).
	StatePendingCreate SyncState = "pending_create"

	// StateSynced marks a task whose local state matches the last fetch.
	StateSynced SyncState = "synced"

	// StateDirty marks a task with local edits since the last fetch.
	StateDirty SyncState = "dirty"

	// StatePendingDelete marks a deleted task tombstoned in pending_deletions
	// and awaiting remote confirmation. A live task row is never in this
	// state; it applies to tombstones only.
	StatePendingDelete SyncState = "pending_delete"
)

// Conflict records a task whose local edits collided with a remote change:
// the local copy is dirty and the remote etag no longer matches the stored
// one. Neither side is auto-resolved; both are preserved until a user or
// policy decision clears the conflict.
type Conflict struct {
	UID        string `json:"uid"`
	Href       string `json:"href"`
	LocalEtag  string `json:"local_etag"`
	RemoteEtag string `json:"remote_etag"`
}

// StateOf classifies a live task row. Tasks removed locally are represented
// by PendingDeletion tombstones and classified StatePendingDelete by callers.
func StateOf(t *Task) SyncState {
	switch {
	case t.LocalOnly:
		return StateLocalOnly
	case t.Href == "":
		return StatePendingCreate
	case t.Synced:
		return StateSynced
	default:
		return StateDirty
	}
}
