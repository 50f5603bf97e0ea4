// Package vtodo converts between iCalendar VTODO objects and the local Task
// entity. The mapping is pure: it owns no sync state and never touches the
// store. Fields the local model does not carry are dropped on decode and
// absent on encode.
package vtodo

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/mattsch/caldav-tasks/internal/model"
)

const prodID = "-//caldav-tasks//NONSGML v1.0//EN"

const (
	dateFormat     = "20060102"
	dateTimeFormat = "20060102T150405Z"
)

// Decode parses an iCalendar byte stream and extracts its VTODO component
// into a Task. Sync bookkeeping (etag, href, synced) is the caller's job.
func Decode(data []byte) (*model.Task, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar object: %w", err)
	}

	var todo *ical.Component
	for _, child := range cal.Children {
		if child.Name == ical.CompToDo {
			todo = child
			break
		}
	}
	if todo == nil {
		return nil, fmt.Errorf("no VTODO component found")
	}

	t := &model.Task{}

	if p := todo.Props.Get(ical.PropUID); p != nil {
		t.UID = p.Value
	}
	if t.UID == "" {
		return nil, fmt.Errorf("VTODO has no UID")
	}

	if p := todo.Props.Get(ical.PropSummary); p != nil {
		if v, err := p.Text(); err == nil {
			t.Title = v
		}
	}
	if p := todo.Props.Get(ical.PropDescription); p != nil {
		if v, err := p.Text(); err == nil {
			t.Description = v
		}
	}
	if p := todo.Props.Get(ical.PropCategories); p != nil {
		if list, err := p.TextList(); err == nil {
			t.Tags = cleanList(list)
		}
	}
	if p := todo.Props.Get(ical.PropURL); p != nil {
		t.URL = p.Value
	}
	if p := todo.Props.Get(ical.PropPriority); p != nil {
		if n, err := strconv.Atoi(p.Value); err == nil {
			t.Priority = fromICalPriority(n)
		}
	}

	if p := todo.Props.Get(ical.PropStatus); p != nil && p.Value == "COMPLETED" {
		t.Completed = true
	}
	if p := todo.Props.Get(ical.PropCompleted); p != nil {
		if ts, err := parseDateTime(p); err == nil {
			t.Completed = true
			t.CompletedAt = &ts
		}
	}
	if t.Completed && t.CompletedAt == nil {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}

	if p := todo.Props.Get(ical.PropDateTimeStart); p != nil {
		if ts, err := parseDateTime(p); err == nil {
			t.StartDate = &ts
			t.StartAllDay = isDateValue(p)
		}
	}
	if p := todo.Props.Get(ical.PropDue); p != nil {
		if ts, err := parseDateTime(p); err == nil {
			t.DueDate = &ts
			t.DueAllDay = isDateValue(p)
		}
	}

	// RELATED-TO without a RELTYPE parameter means parent per RFC 5545.
	for _, p := range todo.Props.Values(ical.PropRelatedTo) {
		relType := p.Params.Get(ical.ParamRelationshipType)
		if relType == "" || strings.EqualFold(relType, "PARENT") {
			t.ParentUID = p.Value
			break
		}
	}

	if p := todo.Props.Get(ical.PropCreated); p != nil {
		if ts, err := parseDateTime(p); err == nil {
			t.CreatedAt = ts
		}
	}
	if p := todo.Props.Get(ical.PropLastModified); p != nil {
		if ts, err := parseDateTime(p); err == nil {
			t.UpdatedAt = ts
		}
	}

	t.SetDefaults()
	return t, nil
}

// Encode serializes a Task as a standalone iCalendar stream holding one
// VTODO component.
func Encode(t *model.Task) ([]byte, error) {
	if t.UID == "" {
		return nil, fmt.Errorf("task has no uid")
	}

	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, t.UID)
	todo.Props.SetText(ical.PropSummary, t.Title)
	if t.Description != "" {
		todo.Props.SetText(ical.PropDescription, t.Description)
	}
	if len(t.Tags) > 0 {
		p := ical.NewProp(ical.PropCategories)
		p.SetTextList(t.Tags)
		todo.Props.Set(p)
	}
	if t.URL != "" {
		todo.Props.SetText(ical.PropURL, t.URL)
	}
	if t.Priority != model.PriorityNone {
		todo.Props.SetText(ical.PropPriority, strconv.Itoa(toICalPriority(t.Priority)))
	}

	if t.Completed {
		todo.Props.SetText(ical.PropStatus, "COMPLETED")
		if t.CompletedAt != nil {
			todo.Props.SetDateTime(ical.PropCompleted, t.CompletedAt.UTC())
		}
	} else {
		todo.Props.SetText(ical.PropStatus, "NEEDS-ACTION")
	}

	setDate(todo, ical.PropDateTimeStart, t.StartDate, t.StartAllDay)
	setDate(todo, ical.PropDue, t.DueDate, t.DueAllDay)

	if t.ParentUID != "" {
		p := ical.NewProp(ical.PropRelatedTo)
		p.Params.Set(ical.ParamRelationshipType, "PARENT")
		p.Value = t.ParentUID
		todo.Props.Set(p)
	}

	if !t.CreatedAt.IsZero() {
		todo.Props.SetDateTime(ical.PropCreated, t.CreatedAt.UTC())
	}
	if !t.UpdatedAt.IsZero() {
		todo.Props.SetDateTime(ical.PropLastModified, t.UpdatedAt.UTC())
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Children = append(cal.Children, todo)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar object: %w", err)
	}
	return buf.Bytes(), nil
}

// setDate writes a date property, as VALUE=DATE for all-day values.
func setDate(todo *ical.Component, name string, ts *time.Time, allDay bool) {
	if ts == nil {
		return
	}
	if allDay {
		p := ical.NewProp(name)
		p.Params.Set(ical.ParamValue, string(ical.ValueDate))
		p.Value = ts.UTC().Format(dateFormat)
		todo.Props.Set(p)
		return
	}
	todo.Props.SetDateTime(name, ts.UTC())
}

// parseDateTime reads a DATE or DATE-TIME property value in UTC.
func parseDateTime(p *ical.Prop) (time.Time, error) {
	v := p.Value
	if isDateValue(p) || len(v) == len(dateFormat) {
		return time.ParseInLocation(dateFormat, v, time.UTC)
	}
	if ts, err := time.ParseInLocation(dateTimeFormat, v, time.UTC); err == nil {
		return ts, nil
	}
	// Floating local time, no trailing Z.
	return time.ParseInLocation("20060102T150405", v, time.UTC)
}

// isDateValue reports whether a property carries VALUE=DATE (all-day).
func isDateValue(p *ical.Prop) bool {
	return strings.EqualFold(p.Params.Get(ical.ParamValue), string(ical.ValueDate))
}

func cleanList(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// fromICalPriority maps RFC 5545 priority 0-9 onto the local scale.
func fromICalPriority(n int) model.Priority {
	switch {
	case n == 0:
		return model.PriorityNone
	case n <= 4:
		return model.PriorityHigh
	case n == 5:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// toICalPriority maps the local scale back onto RFC 5545 values.
func toICalPriority(p model.Priority) int {
	switch p {
	case model.PriorityHigh:
		return 1
	case model.PriorityMedium:
		return 5
	case model.PriorityLow:
		return 9
	default:
		return 0
	}
}
