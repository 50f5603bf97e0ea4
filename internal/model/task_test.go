package model

import (
	"testing"
	"time"
)

func validTask() *Task {
	now := time.Now().UTC()
	return &Task{
		UID:       NewUID(),
		Title:     "valid",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTask_Validate(t *testing.T) {
	if err := validTask().Validate(); err != nil {
		t.Fatalf("Validate() on valid task failed: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Task)
	}{
		{"missing uid", func(task *Task) { task.UID = "" }},
		{"missing title", func(task *Task) { task.Title = "" }},
		{"priority out of range", func(task *Task) { task.Priority = Priority(9) }},
		{"completed without timestamp", func(task *Task) { task.Completed = true }},
		{"timestamp without completed", func(task *Task) { now := time.Now(); task.CompletedAt = &now }},
		{"account without calendar", func(task *Task) { id := int64(1); task.AccountID = &id }},
		{"own parent", func(task *Task) { task.ParentUID = task.UID }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := validTask()
			tc.mutate(task)
			if err := task.Validate(); err == nil {
				t.Errorf("Validate() accepted task with %s", tc.name)
			}
		})
	}
}

func TestTask_SetCompleted(t *testing.T) {
	task := validTask()

	task.SetCompleted(true)
	if !task.Completed || task.CompletedAt == nil {
		t.Errorf("SetCompleted(true) = (%v, %v), want paired", task.Completed, task.CompletedAt)
	}
	if err := task.Validate(); err != nil {
		t.Errorf("Validate() after SetCompleted failed: %v", err)
	}

	task.SetCompleted(false)
	if task.Completed || task.CompletedAt != nil {
		t.Errorf("SetCompleted(false) = (%v, %v), want cleared pair", task.Completed, task.CompletedAt)
	}
}

func TestStateOf(t *testing.T) {
	cases := []struct {
		name string
		task Task
		want SyncState
	}{
		{"local only", Task{LocalOnly: true}, StateLocalOnly},
		{"local only trumps href", Task{LocalOnly: true, Href: "/x.ics", Synced: true}, StateLocalOnly},
		{"pending create", Task{}, StatePendingCreate},
		{"synced", Task{Href: "/x.ics", Synced: true}, StateSynced},
		{"dirty", Task{Href: "/x.ics", Synced: false}, StateDirty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StateOf(&tc.task); got != tc.want {
				t.Errorf("StateOf() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestParsePriority(t *testing.T) {
	for _, s := range []string{"none", "low", "medium", "high", ""} {
		p, err := ParsePriority(s)
		if err != nil {
			t.Errorf("ParsePriority(%q) failed: %v", s, err)
		}
		if s != "" && p.String() != s && !(s == "none" && p == PriorityNone) {
			t.Errorf("round trip %q -> %s", s, p)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("ParsePriority(urgent) succeeded, want error")
	}
}
