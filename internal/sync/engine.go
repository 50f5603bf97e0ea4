// Package sync reconciles the local store with a remote task collection.
// The engine pushes local changes first, then pulls and merges the remote
// delta; every remote mutation lands through a single store transaction so
// a failure mid-sync leaves the local database where it was.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/mattsch/caldav-tasks/internal/model"
	"github.com/mattsch/caldav-tasks/internal/store"
	"github.com/mattsch/caldav-tasks/internal/vtodo"
)

// Summary describes one completed calendar sync.
type Summary struct {
	CalendarID int64            `json:"calendar_id"`
	At         time.Time        `json:"at"`
	Pushed     int              `json:"pushed"`
	Pulled     int              `json:"pulled"`
	Deleted    int              `json:"deleted"`
	Conflicts  []model.Conflict `json:"conflicts,omitempty"`
	Unchanged  bool             `json:"unchanged,omitempty"`
}

// Notifier receives sync outcomes. Implementations must not block; the
// engine calls it inline after each calendar finishes.
type Notifier interface {
	SyncCompleted(Summary)
	SyncFailed(calendarID int64, err error)
}

// Engine drives sync for all remote calendars in a store.
type Engine struct {
	store     *store.Store
	transport Transport
	logger    *slog.Logger
	notifier  Notifier
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier attaches a sync outcome listener.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates a sync engine over the given store and transport.
func New(s *store.Store, t Transport, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		transport: t,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncAll syncs every calendar that belongs to an active account. Local
// calendars are skipped. The first transport or store failure aborts the
// remaining calendars.
func (e *Engine) SyncAll(ctx context.Context) ([]*Summary, error) {
	accounts, err := e.store.ListAccounts(ctx, true)
	if err != nil {
		return nil, err
	}

	var summaries []*Summary
	for _, acct := range accounts {
		sums, err := e.SyncAccount(ctx, acct.ID)
		summaries = append(summaries, sums...)
		if err != nil {
			return summaries, err
		}
	}
	return summaries, nil
}

// SyncAccount syncs every calendar owned by one account. The transport the
// engine was built with must be authenticated for that account.
func (e *Engine) SyncAccount(ctx context.Context, accountID int64) ([]*Summary, error) {
	cals, err := e.store.ListCalendars(ctx, &accountID)
	if err != nil {
		return nil, err
	}

	var summaries []*Summary
	for _, cal := range cals {
		sum, err := e.SyncCalendar(ctx, cal.ID)
		if err != nil {
			if e.notifier != nil {
				e.notifier.SyncFailed(cal.ID, err)
			}
			return summaries, fmt.Errorf("failed to sync calendar %d: %w", cal.ID, err)
		}
		if sum != nil {
			summaries = append(summaries, sum)
		}
	}
	return summaries, nil
}

// SyncCalendar reconciles one calendar with its remote collection. Returns
// nil with no error for local-only calendars, which have nothing to sync.
func (e *Engine) SyncCalendar(ctx context.Context, calendarID int64) (*Summary, error) {
	cal, err := e.store.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if cal.AccountID == nil {
		e.logger.Debug("skipping local calendar", "calendar_id", cal.ID)
		return nil, nil
	}
	if cal.URL == "" {
		return nil, fmt.Errorf("calendar %d has no remote url", cal.ID)
	}

	sum := &Summary{CalendarID: cal.ID, At: time.Now().UTC()}
	log := e.logger.With("calendar_id", cal.ID, "calendar", cal.Name)

	deletions, err := e.store.ListPendingDeletions(ctx, &cal.ID)
	if err != nil {
		return nil, err
	}
	dirty, err := e.store.ListUnsynced(ctx, cal.ID)
	if err != nil {
		return nil, err
	}

	// Collection tag precheck: if the server is unchanged and we have
	// nothing to push, the whole round trip can be skipped.
	ctag, err := e.transport.CTag(ctx, cal.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection tag: %w", err)
	}
	if ctag != "" && ctag == cal.CTag && len(deletions) == 0 && len(dirty) == 0 {
		log.Debug("collection unchanged, skipping sync")
		sum.Unchanged = true
		e.notify(sum)
		return sum, nil
	}

	if err := e.pushDeletes(ctx, deletions, sum, log); err != nil {
		return nil, err
	}
	if err := e.pushChanges(ctx, cal, dirty, sum, log); err != nil {
		return nil, err
	}
	if err := e.pull(ctx, cal, sum, log); err != nil {
		return nil, err
	}

	if err := e.store.TouchAccountSynced(ctx, *cal.AccountID, sum.At); err != nil {
		return nil, err
	}

	log.Info("sync finished",
		"pushed", sum.Pushed,
		"pulled", sum.Pulled,
		"deleted", sum.Deleted,
		"conflicts", len(sum.Conflicts))
	e.notify(sum)
	return sum, nil
}

// pushDeletes replays local tombstones against the server. A remote 404
// means the object is already gone, which confirms the tombstone just as
// well as a successful delete.
func (e *Engine) pushDeletes(ctx context.Context, deletions []*model.PendingDeletion, sum *Summary, log *slog.Logger) error {
	for _, d := range deletions {
		err := e.transport.Delete(ctx, d.Href, "")
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to delete %s remotely: %w", d.Href, err)
		}
		if err := e.store.ConfirmDeletion(ctx, d.UID); err != nil {
			return err
		}
		sum.Deleted++
		log.Debug("pushed deletion", "uid", d.UID, "href", d.Href)
	}
	return nil
}

// pushChanges uploads every unsynced task. Creates go up unconditionally;
// updates are conditional on the etag we last saw. A precondition failure
// means the server moved on underneath us, so the task stays dirty and the
// pull phase surfaces the conflict.
func (e *Engine) pushChanges(ctx context.Context, cal *model.Calendar, dirty []*model.Task, sum *Summary, log *slog.Logger) error {
	for _, t := range dirty {
		data, err := vtodo.Encode(t)
		if err != nil {
			return fmt.Errorf("failed to encode task %s: %w", t.UID, err)
		}

		href := t.Href
		if href == "" {
			href = path.Join(cal.URL, t.UID+".ics")
		}

		newHref, newEtag, err := e.transport.Put(ctx, href, t.Etag, data)
		if errors.Is(err, ErrPreconditionFailed) {
			log.Warn("push lost etag race, leaving task dirty", "uid", t.UID)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to upload task %s: %w", t.UID, err)
		}

		if err := e.store.MarkTaskSynced(ctx, t.UID, newEtag, newHref); err != nil {
			return err
		}
		sum.Pushed++
		log.Debug("pushed task", "uid", t.UID, "etag", newEtag)
	}
	return nil
}

// pull fetches the remote delta (incremental when a sync token is held,
// full listing otherwise), decodes it outside any transaction, and hands
// the result to the store's merge in one transaction.
func (e *Engine) pull(ctx context.Context, cal *model.Calendar, sum *Summary, log *slog.Logger) error {
	// The collection tag is read before the listing: a change landing during
	// the fetch then leaves the stored tag older than the server's, so the
	// next precheck still sees the missed change.
	ctag, err := e.transport.CTag(ctx, cal.URL)
	if err != nil {
		return fmt.Errorf("failed to refresh collection tag: %w", err)
	}

	var (
		objects []Object
		deleted []string
		token   = cal.SyncToken
	)

	if token != "" {
		delta, err := e.transport.Changes(ctx, cal.URL, token)
		switch {
		case errors.Is(err, ErrStaleToken):
			log.Info("sync token expired, falling back to full listing")
			token = ""
		case err != nil:
			return fmt.Errorf("failed to fetch changes: %w", err)
		default:
			objects = delta.Changed
			deleted = delta.Deleted
			token = delta.Token
		}
	}
	if token == "" || cal.SyncToken == "" {
		list, listToken, err := e.transport.List(ctx, cal.URL)
		if err != nil {
			return fmt.Errorf("failed to list collection: %w", err)
		}
		objects = list
		token = listToken

		// A full listing carries no tombstones: any local copy whose href
		// is missing from it was deleted on the server.
		deleted, err = e.missingHrefs(ctx, cal.ID, list)
		if err != nil {
			return err
		}
	}

	changes := make([]store.RemoteTask, 0, len(objects))
	for _, obj := range objects {
		t, err := vtodo.Decode(obj.Data)
		if err != nil {
			log.Warn("skipping undecodable remote object", "href", obj.Href, "error", err)
			continue
		}
		t.AccountID = cal.AccountID
		t.CalendarID = &cal.ID
		changes = append(changes, store.RemoteTask{Href: obj.Href, Etag: obj.Etag, Task: *t})
	}

	res, err := e.store.MergeRemote(ctx, cal.ID, changes, deleted, ctag, token)
	if err != nil {
		return fmt.Errorf("failed to merge remote changes: %w", err)
	}

	sum.Pulled = res.Added + res.Updated
	sum.Deleted += res.Deleted
	sum.Conflicts = append(sum.Conflicts, res.Conflicts...)
	return nil
}

// missingHrefs returns the hrefs of local copies absent from a full remote
// listing. Tasks that never reached the server have no href and are left
// alone.
func (e *Engine) missingHrefs(ctx context.Context, calendarID int64, list []Object) ([]string, error) {
	remote := make(map[string]struct{}, len(list))
	for _, obj := range list {
		remote[obj.Href] = struct{}{}
	}

	local, err := e.store.ListTasks(ctx, store.TaskFilter{CalendarID: &calendarID})
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, t := range local {
		if t.Href == "" || t.LocalOnly {
			continue
		}
		if _, ok := remote[t.Href]; !ok {
			missing = append(missing, t.Href)
		}
	}
	return missing, nil
}

func (e *Engine) notify(sum *Summary) {
	if e.notifier != nil {
		e.notifier.SyncCompleted(*sum)
	}
}
