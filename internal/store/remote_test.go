package store

import (
	"context"
	"testing"

	"github.com/mattsch/caldav-tasks/internal/model"
)

func remoteFixture(t *testing.T, s *Store) (*model.Account, *model.Calendar) {
	t.Helper()
	a := testAccount(t, s)
	return a, testCalendar(t, s, a)
}

func TestMergeRemote_AddsNewTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	changes := []RemoteTask{
		{Href: "/cal/r1.ics", Etag: `"e1"`, Task: model.Task{UID: "r1", Title: "from server"}},
		{Href: "/cal/r2.ics", Etag: `"e2"`, Task: model.Task{UID: "r2", Title: "also remote"}},
	}
	res, err := s.MergeRemote(ctx, c.ID, changes, nil, "ctag-1", "token-1")
	if err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}
	if res.Added != 2 {
		t.Errorf("Added = %d, want 2", res.Added)
	}

	got, err := s.GetTaskByUID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetTaskByUID() failed: %v", err)
	}
	if !got.Synced || got.Etag != `"e1"` || got.Href != "/cal/r1.ics" {
		t.Errorf("remote task stored as %+v, want synced with server identifiers", got)
	}
	if model.StateOf(got) != model.StateSynced {
		t.Errorf("StateOf() = %s, want %s", model.StateOf(got), model.StateSynced)
	}

	// The cursor advances with the same commit.
	cal, _ := s.GetCalendar(ctx, c.ID)
	if cal.CTag != "ctag-1" || cal.SyncToken != "token-1" {
		t.Errorf("cursor = (%q, %q), want (ctag-1, token-1)", cal.CTag, cal.SyncToken)
	}
}

func TestMergeRemote_SkipsUnchangedEtag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	change := RemoteTask{Href: "/cal/r1.ics", Etag: `"e1"`, Task: model.Task{UID: "r1", Title: "v1"}}
	if _, err := s.MergeRemote(ctx, c.ID, []RemoteTask{change}, nil, "ctag-1", ""); err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}

	// Same etag again: content must not be reread.
	change.Task.Title = "would overwrite"
	res, err := s.MergeRemote(ctx, c.ID, []RemoteTask{change}, nil, "ctag-2", "")
	if err != nil {
		t.Fatalf("second MergeRemote() failed: %v", err)
	}
	if res.Skipped != 1 || res.Updated != 0 {
		t.Errorf("result = %+v, want one skip", res)
	}

	got, _ := s.GetTaskByUID(ctx, "r1")
	if got.Title != "v1" {
		t.Errorf("Title = %q, want untouched %q", got.Title, "v1")
	}
}

func TestMergeRemote_UpdatesCleanCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	v1 := RemoteTask{Href: "/cal/r1.ics", Etag: `"e1"`, Task: model.Task{UID: "r1", Title: "v1"}}
	if _, err := s.MergeRemote(ctx, c.ID, []RemoteTask{v1}, nil, "ctag-1", ""); err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}

	// Pin down local-only presentation state, then let the server update.
	if err := s.SetCollapsed(ctx, "r1", true); err != nil {
		t.Fatalf("SetCollapsed() failed: %v", err)
	}

	v2 := RemoteTask{Href: "/cal/r1.ics", Etag: `"e2"`, Task: model.Task{UID: "r1", Title: "v2"}}
	res, err := s.MergeRemote(ctx, c.ID, []RemoteTask{v2}, nil, "ctag-2", "")
	if err != nil {
		t.Fatalf("second MergeRemote() failed: %v", err)
	}
	if res.Updated != 1 {
		t.Errorf("Updated = %d, want 1", res.Updated)
	}

	got, _ := s.GetTaskByUID(ctx, "r1")
	if got.Title != "v2" || got.Etag != `"e2"` {
		t.Errorf("task = (%q, %s), want remote v2 content", got.Title, got.Etag)
	}
	if !got.IsCollapsed {
		t.Error("merge clobbered the local collapse flag")
	}
	if model.StateOf(got) != model.StateSynced {
		t.Errorf("StateOf() = %s, want %s", model.StateOf(got), model.StateSynced)
	}
}

func TestMergeRemote_DirtyLocalRaisesConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	v1 := RemoteTask{Href: "/cal/r1.ics", Etag: `"e1"`, Task: model.Task{UID: "r1", Title: "server v1"}}
	if _, err := s.MergeRemote(ctx, c.ID, []RemoteTask{v1}, nil, "ctag-1", ""); err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}

	// Edit locally, then receive a different remote version.
	local, _ := s.GetTaskByUID(ctx, "r1")
	local.Title = "my edit"
	if err := s.UpdateTask(ctx, local); err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}

	v2 := RemoteTask{Href: "/cal/r1.ics", Etag: `"e2"`, Task: model.Task{UID: "r1", Title: "server v2"}}
	res, err := s.MergeRemote(ctx, c.ID, []RemoteTask{v2}, nil, "ctag-2", "")
	if err != nil {
		t.Fatalf("second MergeRemote() failed: %v", err)
	}

	if len(res.Conflicts) != 1 {
		t.Fatalf("Conflicts = %d, want 1", len(res.Conflicts))
	}
	conflict := res.Conflicts[0]
	if conflict.UID != "r1" || conflict.LocalEtag != `"e1"` || conflict.RemoteEtag != `"e2"` {
		t.Errorf("conflict = %+v, want both etags surfaced", conflict)
	}

	// The local edit survives untouched and stays dirty.
	got, _ := s.GetTaskByUID(ctx, "r1")
	if got.Title != "my edit" {
		t.Errorf("Title = %q, want local edit preserved", got.Title)
	}
	if model.StateOf(got) != model.StateDirty {
		t.Errorf("StateOf() = %s, want %s", model.StateOf(got), model.StateDirty)
	}
}

func TestMergeRemote_DeletesCleanCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	parent := RemoteTask{Href: "/cal/p.ics", Etag: `"e1"`, Task: model.Task{UID: "p", Title: "parent"}}
	child := RemoteTask{Href: "/cal/k.ics", Etag: `"e2"`, Task: model.Task{UID: "k", Title: "child", ParentUID: "p"}}
	if _, err := s.MergeRemote(ctx, c.ID, []RemoteTask{parent, child}, nil, "ctag-1", ""); err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}

	res, err := s.MergeRemote(ctx, c.ID, nil, []string{"/cal/p.ics"}, "ctag-2", "")
	if err != nil {
		t.Fatalf("delete merge failed: %v", err)
	}
	if res.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", res.Deleted)
	}

	if _, err := s.GetTaskByUID(ctx, "p"); err != ErrNotFound {
		t.Errorf("GetTaskByUID(p) = %v, want ErrNotFound", err)
	}
	got, err := s.GetTaskByUID(ctx, "k")
	if err != nil {
		t.Fatalf("child vanished with parent: %v", err)
	}
	if got.ParentUID != "" {
		t.Errorf("child ParentUID = %q, want detached", got.ParentUID)
	}
}

func TestMergeRemote_DeleteOfDirtyRaisesConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	v1 := RemoteTask{Href: "/cal/r1.ics", Etag: `"e1"`, Task: model.Task{UID: "r1", Title: "v1"}}
	if _, err := s.MergeRemote(ctx, c.ID, []RemoteTask{v1}, nil, "ctag-1", ""); err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}
	local, _ := s.GetTaskByUID(ctx, "r1")
	local.Title = "my edit"
	if err := s.UpdateTask(ctx, local); err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}

	res, err := s.MergeRemote(ctx, c.ID, nil, []string{"/cal/r1.ics"}, "ctag-2", "")
	if err != nil {
		t.Fatalf("delete merge failed: %v", err)
	}
	if res.Deleted != 0 || len(res.Conflicts) != 1 {
		t.Errorf("result = %+v, want conflict instead of delete", res)
	}
	if _, err := s.GetTaskByUID(ctx, "r1"); err != nil {
		t.Errorf("dirty task removed by remote delete: %v", err)
	}
}

func TestMergeRemote_DeleteConfirmsTombstone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, c := remoteFixture(t, s)

	task := mustCreateTask(t, s, &model.Task{Title: "doomed", AccountID: &a.ID, CalendarID: &c.ID})
	if err := s.MarkTaskSynced(ctx, task.UID, `"e1"`, "/cal/d.ics"); err != nil {
		t.Fatalf("MarkTaskSynced() failed: %v", err)
	}
	if err := s.DeleteTask(ctx, task.UID); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}

	// The server reports the same href deleted: our tombstone is confirmed,
	// nothing else changes.
	res, err := s.MergeRemote(ctx, c.ID, nil, []string{"/cal/d.ics"}, "ctag-2", "")
	if err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}
	if res.Deleted != 0 {
		t.Errorf("Deleted = %d, want 0 for tombstone confirmation", res.Deleted)
	}
	dels, _ := s.ListPendingDeletions(ctx, &c.ID)
	if len(dels) != 0 {
		t.Errorf("pending deletions = %d after confirmation, want 0", len(dels))
	}
}

func TestMergeRemote_DeleteOfUnknownHrefIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	res, err := s.MergeRemote(ctx, c.ID, nil, []string{"/cal/never-seen.ics"}, "ctag-1", "")
	if err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}
	if res.Deleted != 0 || len(res.Conflicts) != 0 {
		t.Errorf("result = %+v, want noop", res)
	}
}

func TestMergeRemote_ParentCycleRaisesConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	b := RemoteTask{Href: "/cal/b.ics", Etag: `"b1"`, Task: model.Task{UID: "b", Title: "b"}}
	a := RemoteTask{Href: "/cal/a.ics", Etag: `"a1"`, Task: model.Task{UID: "a", Title: "a", ParentUID: "b"}}
	if _, err := s.MergeRemote(ctx, c.ID, []RemoteTask{b, a}, nil, "ctag-1", ""); err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}

	// The server now claims b is a child of a, which would close a loop.
	b2 := RemoteTask{Href: "/cal/b.ics", Etag: `"b2"`, Task: model.Task{UID: "b", Title: "b", ParentUID: "a"}}
	res, err := s.MergeRemote(ctx, c.ID, []RemoteTask{b2}, nil, "ctag-2", "")
	if err != nil {
		t.Fatalf("second MergeRemote() failed: %v", err)
	}
	if res.Updated != 0 || len(res.Conflicts) != 1 {
		t.Fatalf("result = %+v, want the cyclic reparent surfaced as a conflict", res)
	}

	got, _ := s.GetTaskByUID(ctx, "b")
	if got.ParentUID != "" || got.Etag != `"b1"` {
		t.Errorf("task b = (parent %q, etag %s), want untouched", got.ParentUID, got.Etag)
	}
}

func TestMergeRemote_InsertCycleDetaches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	// Resources can arrive child-first, leaving a dangling parent link; a
	// later resource must not be allowed to close the loop.
	child := RemoteTask{Href: "/cal/c.ics", Etag: `"c1"`, Task: model.Task{UID: "c", Title: "child", ParentUID: "d"}}
	parent := RemoteTask{Href: "/cal/d.ics", Etag: `"d1"`, Task: model.Task{UID: "d", Title: "parent", ParentUID: "c"}}
	res, err := s.MergeRemote(ctx, c.ID, []RemoteTask{child, parent}, nil, "ctag-1", "")
	if err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}
	if res.Added != 2 {
		t.Fatalf("Added = %d, want 2", res.Added)
	}

	d, _ := s.GetTaskByUID(ctx, "d")
	if d.ParentUID != "" {
		t.Errorf("d.ParentUID = %q, want detached to keep the forest acyclic", d.ParentUID)
	}
	kid, _ := s.GetTaskByUID(ctx, "c")
	if kid.ParentUID != "d" {
		t.Errorf("c.ParentUID = %q, want %q", kid.ParentUID, "d")
	}
}

func TestMergeRemote_SkipsInvalidRemoteTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	// A VTODO without SUMMARY decodes to an empty title. It must be skipped,
	// not allowed to wedge the whole merge behind a never-advancing cursor.
	bad := RemoteTask{Href: "/cal/bad.ics", Etag: `"e1"`, Task: model.Task{UID: "bad"}}
	good := RemoteTask{Href: "/cal/ok.ics", Etag: `"e2"`, Task: model.Task{UID: "ok", Title: "fine"}}
	res, err := s.MergeRemote(ctx, c.ID, []RemoteTask{bad, good}, nil, "ctag-1", "token-1")
	if err != nil {
		t.Fatalf("MergeRemote() failed: %v", err)
	}
	if res.Added != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v, want the invalid resource skipped", res)
	}

	if _, err := s.GetTaskByUID(ctx, "ok"); err != nil {
		t.Errorf("valid task not stored: %v", err)
	}
	if _, err := s.GetTaskByUID(ctx, "bad"); err != ErrNotFound {
		t.Errorf("GetTaskByUID(bad) = %v, want ErrNotFound", err)
	}

	// The cursor advances past the bad resource.
	cal, _ := s.GetCalendar(ctx, c.ID)
	if cal.CTag != "ctag-1" || cal.SyncToken != "token-1" {
		t.Errorf("cursor = (%q, %q), want (ctag-1, token-1)", cal.CTag, cal.SyncToken)
	}
}

func TestMergeRemote_MissingUIDRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, c := remoteFixture(t, s)

	bad := RemoteTask{Href: "/cal/x.ics", Etag: `"e1"`, Task: model.Task{Title: "anonymous"}}
	if _, err := s.MergeRemote(ctx, c.ID, []RemoteTask{bad}, nil, "ctag-1", ""); err == nil {
		t.Fatal("MergeRemote() accepted a resource without uid, want error")
	}

	// The failed merge must not advance the cursor.
	cal, _ := s.GetCalendar(ctx, c.ID)
	if cal.CTag != "" {
		t.Errorf("ctag = %q after failed merge, want empty", cal.CTag)
	}
}
