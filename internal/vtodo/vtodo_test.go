package vtodo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsch/caldav-tasks/internal/model"
)

func TestEncode_RoundTrip(t *testing.T) {
	due := time.Date(2026, 9, 15, 17, 30, 0, 0, time.UTC)
	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	task := &model.Task{
		UID:         "task-1",
		Title:       "write report",
		Description: "quarterly numbers",
		Tags:        []string{"work", "urgent"},
		Priority:    model.PriorityHigh,
		DueDate:     &due,
		StartDate:   &start,
		StartAllDay: true,
		ParentUID:   "project-9",
		URL:         "https://wiki.example.com/report",
	}

	data, err := Encode(task)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, task.UID, got.UID)
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, task.Description, got.Description)
	assert.Equal(t, task.Tags, got.Tags)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.Equal(t, task.ParentUID, got.ParentUID)
	assert.Equal(t, task.URL, got.URL)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(due))
	assert.False(t, got.DueAllDay)
	require.NotNil(t, got.StartDate)
	assert.True(t, got.StartDate.Equal(start))
	assert.True(t, got.StartAllDay)
	assert.False(t, got.Completed)
}

func TestEncode_CompletedPair(t *testing.T) {
	completedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	task := &model.Task{
		UID:         "done-1",
		Title:       "finished",
		Completed:   true,
		CompletedAt: &completedAt,
	}

	data, err := Encode(task)
	require.NoError(t, err)
	assert.Contains(t, string(data), "STATUS:COMPLETED")

	got, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completedAt))
}

func TestEncode_AllDayDueUsesDateValue(t *testing.T) {
	due := time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC)
	task := &model.Task{UID: "xmas", Title: "wrap presents", DueDate: &due, DueAllDay: true}

	data, err := Encode(task)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DUE;VALUE=DATE:20261224")

	got, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, got.DueAllDay)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(due))
}

func TestEncode_RequiresUID(t *testing.T) {
	_, err := Encode(&model.Task{Title: "anonymous"})
	assert.Error(t, err)
}

func TestDecode_MinimalTodo(t *testing.T) {
	raw := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//other client//EN",
		"BEGIN:VTODO",
		"UID:min-1",
		"SUMMARY:bare minimum",
		"END:VTODO",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	got, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "min-1", got.UID)
	assert.Equal(t, "bare minimum", got.Title)
	assert.Equal(t, model.PriorityNone, got.Priority)
	assert.Nil(t, got.DueDate)
}

func TestDecode_MissingSummary(t *testing.T) {
	// SUMMARY is optional in RFC 5545; the codec maps its absence to an
	// empty title and leaves validity to the caller.
	raw := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//other client//EN",
		"BEGIN:VTODO",
		"UID:untitled-1",
		"END:VTODO",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	got, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "untitled-1", got.UID)
	assert.Empty(t, got.Title)
}

func TestDecode_PriorityMapping(t *testing.T) {
	cases := []struct {
		ical string
		want model.Priority
	}{
		{"1", model.PriorityHigh},
		{"4", model.PriorityHigh},
		{"5", model.PriorityMedium},
		{"6", model.PriorityLow},
		{"9", model.PriorityLow},
		{"0", model.PriorityNone},
	}
	for _, tc := range cases {
		raw := strings.Join([]string{
			"BEGIN:VCALENDAR",
			"VERSION:2.0",
			"PRODID:-//x//EN",
			"BEGIN:VTODO",
			"UID:p-1",
			"SUMMARY:p",
			"PRIORITY:" + tc.ical,
			"END:VTODO",
			"END:VCALENDAR",
			"",
		}, "\r\n")

		got, err := Decode([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Priority, "PRIORITY:%s", tc.ical)
	}
}

func TestDecode_RelatedToParent(t *testing.T) {
	raw := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//EN",
		"BEGIN:VTODO",
		"UID:child-1",
		"SUMMARY:child",
		"RELATED-TO;RELTYPE=PARENT:parent-1",
		"END:VTODO",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	got, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "parent-1", got.ParentUID)
}

func TestDecode_CompletedTimestampImpliesDone(t *testing.T) {
	raw := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//EN",
		"BEGIN:VTODO",
		"UID:d-1",
		"SUMMARY:done elsewhere",
		"COMPLETED:20260801T120000Z",
		"END:VTODO",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	got, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.True(t, got.Completed)
	require.NotNil(t, got.CompletedAt)
}

func TestDecode_RejectsMissingUID(t *testing.T) {
	raw := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//EN",
		"BEGIN:VTODO",
		"SUMMARY:nameless",
		"END:VTODO",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	_, err := Decode([]byte(raw))
	assert.Error(t, err)
}

func TestDecode_RejectsNonTodo(t *testing.T) {
	raw := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//EN",
		"BEGIN:VEVENT",
		"UID:ev-1",
		"DTSTAMP:20260801T120000Z",
		"DTSTART:20260801T120000Z",
		"SUMMARY:a meeting",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	_, err := Decode([]byte(raw))
	assert.Error(t, err)
}
