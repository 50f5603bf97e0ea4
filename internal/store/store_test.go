package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mattsch/caldav-tasks/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testAccount inserts a throwaway account and returns it.
func testAccount(t *testing.T, s *Store) *model.Account {
	t.Helper()
	a := &model.Account{
		Name:      "test",
		ServerURL: "https://dav.example.com",
		Username:  "alice",
		Password:  "secret",
		IsActive:  true,
	}
	if err := s.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return a
}

// testCalendar inserts a remote calendar under acct (or a local calendar
// when acct is nil) and returns it.
func testCalendar(t *testing.T, s *Store, acct *model.Account) *model.Calendar {
	t.Helper()
	c := &model.Calendar{Name: "tasks"}
	if acct != nil {
		c.AccountID = &acct.ID
		c.URL = "https://dav.example.com/calendars/alice/tasks/"
	}
	if err := s.CreateCalendar(context.Background(), c); err != nil {
		t.Fatalf("CreateCalendar() failed: %v", err)
	}
	return c
}

func TestOpen_CreatesAndMigrates(t *testing.T) {
	s := newTestStore(t)

	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if v < 3 {
		t.Errorf("SchemaVersion() = %d, want >= 3", v)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	a := testAccount(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAccount() after reopen failed: %v", err)
	}
	if got.Name != a.Name {
		t.Errorf("Name = %q, want %q", got.Name, a.Name)
	}
}

func TestAccount_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount(t, s)
	if a.ID == 0 {
		t.Fatal("CreateAccount() did not assign an id")
	}

	a.Name = "renamed"
	if err := s.UpdateAccount(ctx, a); err != nil {
		t.Fatalf("UpdateAccount() failed: %v", err)
	}
	got, err := s.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAccount() failed: %v", err)
	}
	if got.Name != "renamed" {
		t.Errorf("Name = %q, want %q", got.Name, "renamed")
	}
	if got.Password != "secret" {
		t.Errorf("Password not round-tripped")
	}

	if err := s.SetAccountActive(ctx, a.ID, false); err != nil {
		t.Fatalf("SetAccountActive() failed: %v", err)
	}
	active, err := s.ListAccounts(ctx, true)
	if err != nil {
		t.Fatalf("ListAccounts() failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("ListAccounts(activeOnly) = %d accounts, want 0", len(active))
	}

	if err := s.DeleteAccount(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAccount() failed: %v", err)
	}
	if _, err := s.GetAccount(ctx, a.ID); err != ErrNotFound {
		t.Errorf("GetAccount() after delete = %v, want ErrNotFound", err)
	}
}

func TestAccount_ValidationRejected(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateAccount(context.Background(), &model.Account{Name: "no-url"})
	if err == nil {
		t.Fatal("CreateAccount() without server_url succeeded, want error")
	}
}

func TestCalendar_RemoteRequiresURL(t *testing.T) {
	s := newTestStore(t)
	a := testAccount(t, s)

	c := &model.Calendar{Name: "broken", AccountID: &a.ID}
	if err := s.CreateCalendar(context.Background(), c); err == nil {
		t.Fatal("CreateCalendar() remote without url succeeded, want error")
	}
}

func TestCalendar_LocalWithoutAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCalendar(t, s, nil)
	got, err := s.GetCalendar(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCalendar() failed: %v", err)
	}
	if got.AccountID != nil {
		t.Error("local calendar has an account id")
	}
}

func TestCalendar_UnknownAccountRejected(t *testing.T) {
	s := newTestStore(t)

	missing := int64(999)
	c := &model.Calendar{Name: "orphan", AccountID: &missing, URL: "https://x/"}
	if err := s.CreateCalendar(context.Background(), c); err == nil {
		t.Fatal("CreateCalendar() with unknown account succeeded, want error")
	}
}

func TestDeleteAccount_CascadesAndTombstones(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAccount(t, s)
	c := testCalendar(t, s, a)

	synced := &model.Task{
		Title: "pushed", AccountID: &a.ID, CalendarID: &c.ID,
		Href: "/cal/pushed.ics", Etag: `"e1"`, Synced: true,
	}
	if err := s.CreateTask(ctx, synced); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	never := &model.Task{Title: "never pushed", AccountID: &a.ID, CalendarID: &c.ID}
	if err := s.CreateTask(ctx, never); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	if err := s.DeleteAccount(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAccount() failed: %v", err)
	}

	tasks, err := s.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks after account delete = %d, want 0", len(tasks))
	}

	// Only the task that reached the server leaves a tombstone.
	dels, err := s.ListPendingDeletions(ctx, nil)
	if err != nil {
		t.Fatalf("ListPendingDeletions() failed: %v", err)
	}
	if len(dels) != 1 {
		t.Fatalf("pending deletions = %d, want 1", len(dels))
	}
	if dels[0].UID != synced.UID {
		t.Errorf("tombstone uid = %q, want %q", dels[0].UID, synced.UID)
	}
}

func TestTags_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag := &model.Tag{Name: "home", Color: "#ff0000"}
	if err := s.CreateTag(ctx, tag); err != nil {
		t.Fatalf("CreateTag() failed: %v", err)
	}

	if err := s.CreateTag(ctx, &model.Tag{Name: "home"}); err == nil {
		t.Error("duplicate tag name accepted, want error")
	}

	tag.Color = "#00ff00"
	if err := s.UpdateTag(ctx, tag); err != nil {
		t.Fatalf("UpdateTag() failed: %v", err)
	}

	tags, err := s.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags() failed: %v", err)
	}
	if len(tags) != 1 || tags[0].Color != "#00ff00" {
		t.Errorf("ListTags() = %+v, want one tag with updated color", tags)
	}

	if err := s.DeleteTag(ctx, tag.ID); err != nil {
		t.Fatalf("DeleteTag() failed: %v", err)
	}
}

func TestDeleteTag_KeepsTaskLabels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tag := &model.Tag{Name: "errand"}
	if err := s.CreateTag(ctx, tag); err != nil {
		t.Fatalf("CreateTag() failed: %v", err)
	}
	task := &model.Task{Title: "post office", Tags: []string{"errand"}}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	if err := s.DeleteTag(ctx, tag.ID); err != nil {
		t.Fatalf("DeleteTag() failed: %v", err)
	}

	got, err := s.GetTaskByUID(ctx, task.UID)
	if err != nil {
		t.Fatalf("GetTaskByUID() failed: %v", err)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "errand" {
		t.Errorf("Tags = %v after tag delete, want [errand]", got.Tags)
	}
}

func TestUIState_DefaultsAndRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.GetUIState(ctx)
	if err != nil {
		t.Fatalf("GetUIState() on empty store failed: %v", err)
	}
	if st.SortMode != "manual" {
		t.Errorf("default SortMode = %q, want %q", st.SortMode, "manual")
	}

	calID := int64(7)
	st.SelectedCalendarID = &calID
	st.SortMode = "due"
	st.ShowCompleted = true
	if err := s.PutUIState(ctx, st); err != nil {
		t.Fatalf("PutUIState() failed: %v", err)
	}

	// Second write must update the singleton, not add a row.
	st.SortMode = "priority"
	if err := s.PutUIState(ctx, st); err != nil {
		t.Fatalf("second PutUIState() failed: %v", err)
	}

	got, err := s.GetUIState(ctx)
	if err != nil {
		t.Fatalf("GetUIState() failed: %v", err)
	}
	if got.SortMode != "priority" || !got.ShowCompleted {
		t.Errorf("GetUIState() = %+v, want updated state", got)
	}
	if got.SelectedCalendarID == nil || *got.SelectedCalendarID != calID {
		t.Errorf("SelectedCalendarID = %v, want %d", got.SelectedCalendarID, calID)
	}
}
