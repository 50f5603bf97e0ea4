package sync

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Transport when the remote object no longer
// exists (the CalDAV 404/410 case). The engine treats it as confirmation
// that a pending deletion already happened.
var ErrNotFound = errors.New("remote object not found")

// Object is one calendar object as the server holds it.
type Object struct {
	Href string
	Etag string
	Data []byte
}

// Delta is the result of an incremental report: what changed since the
// token the caller supplied, plus the token to persist for next time.
type Delta struct {
	Changed []Object
	Deleted []string // hrefs removed on the server
	Token   string
}

// Transport is the wire boundary. Implementations speak CalDAV (or
// anything else that can satisfy the contract); the engine only ever sees
// opaque hrefs, etags, and iCalendar bytes.
type Transport interface {
	// CTag fetches the collection tag for the calendar at calURL.
	CTag(ctx context.Context, calURL string) (string, error)

	// List fetches every object in the collection along with a fresh sync
	// token. Used for the initial sync and whenever no valid token is held.
	List(ctx context.Context, calURL string) ([]Object, string, error)

	// Changes fetches the delta since token. Implementations that cannot
	// honor the token must return ErrStaleToken so the engine falls back
	// to List.
	Changes(ctx context.Context, calURL, token string) (*Delta, error)

	// Put uploads object data. An empty etag means unconditional create;
	// a non-empty etag makes the write conditional on the server still
	// holding that version. Returns the href and etag the server assigned.
	Put(ctx context.Context, href, etag string, data []byte) (newHref, newEtag string, err error)

	// Delete removes the object at href, conditional on etag when
	// non-empty. Returns ErrNotFound if it is already gone.
	Delete(ctx context.Context, href, etag string) error
}

// ErrStaleToken signals that the server no longer recognizes the sync
// token and a full listing is required.
var ErrStaleToken = errors.New("sync token no longer valid")

// ErrPreconditionFailed signals a conditional Put or Delete lost the race:
// the server holds a different etag than the one supplied.
var ErrPreconditionFailed = errors.New("remote etag precondition failed")
