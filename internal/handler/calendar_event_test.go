package handler

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cadence/internal/model"
)

func (e *testEnv) createEvent(t *testing.T, body map[string]any) model.CalendarEvent {
	t.Helper()
	rec := e.do(t, "POST", "/api/events", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.CalendarEvent](t, rec)
}

func TestEventCreateNormalizesRule(t *testing.T) {
	env := newTestEnv(t)

	event := env.createEvent(t, map[string]any{
		"title":           "Standup",
		"start_time":      "2026-03-09T09:00:00Z",
		"end_time":        "2026-03-09T09:15:00Z",
		"recurrence_rule": "RRULE:FREQ=WEEKLY;INTERVAL=1;BYDAY=MO",
	})
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", event.RecurrenceRule)
	assert.True(t, event.IsRecurring())
}

func TestEventCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"missing title", map[string]any{"start_time": "2026-03-09", "end_time": "2026-03-10"}, "title is required"},
		{"bad start", map[string]any{"title": "x", "start_time": "monday", "end_time": "2026-03-10"}, "start_time must be RFC3339 or YYYY-MM-DD format"},
		{"end before start", map[string]any{"title": "x", "start_time": "2026-03-10", "end_time": "2026-03-09"}, "start_time must not be after end_time"},
		{"unknown owner", map[string]any{"title": "x", "start_time": "2026-03-09", "end_time": "2026-03-10", "owner_id": 12}, "owner not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorMessage(t, rec))
		})
	}

	rec := env.do(t, "POST", "/api/events", map[string]any{
		"title": "x", "start_time": "2026-03-09", "end_time": "2026-03-10", "recurrence_rule": "FREQ=HOURLY",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(errorMessage(t, rec), "invalid recurrence_rule"))
}

func TestEventListExpandsRecurring(t *testing.T) {
	env := newTestEnv(t)

	env.createEvent(t, map[string]any{
		"title":           "Standup",
		"start_time":      "2026-03-02T09:00:00Z",
		"end_time":        "2026-03-02T09:15:00Z",
		"recurrence_rule": "FREQ=WEEKLY;BYDAY=MO",
	})
	env.createEvent(t, map[string]any{
		"title":      "Review",
		"start_time": "2026-03-10T13:00:00Z",
		"end_time":   "2026-03-10T14:00:00Z",
	})
	env.createEvent(t, map[string]any{
		"title":      "Offsite",
		"start_time": "2026-03-12",
		"end_time":   "2026-03-13",
		"all_day":    true,
	})
	env.createEvent(t, map[string]any{
		"title":      "Outside",
		"start_time": "2026-04-01T10:00:00Z",
		"end_time":   "2026-04-01T11:00:00Z",
	})

	rec := env.do(t, "GET", "/api/events?start=2026-03-09&end=2026-03-23", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	instances := decode[[]model.EventInstance](t, rec)

	var got []string
	for _, in := range instances {
		got = append(got, in.Title+"@"+in.OccurrenceStart.UTC().Format("01-02"))
	}
	assert.Equal(t, []string{"Offsite@03-12", "Standup@03-09", "Review@03-10", "Standup@03-16"}, got)

	for _, in := range instances {
		assert.Equal(t, in.Title == "Standup", in.Recurring)
	}
	standup := instances[1]
	assert.Equal(t, 15*time.Minute, standup.OccurrenceEnd.Sub(standup.OccurrenceStart))
}

func TestEventListExpandsInLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	env := newTestEnv(t)

	// Monday 20:00 in New York, stored as Tuesday 00:00 UTC.
	start := time.Date(2026, 10, 5, 20, 0, 0, 0, ny)
	_, err = env.events.Create(model.CalendarEvent{
		Title: "Review", StartTime: start, EndTime: start.Add(time.Hour), RecurrenceRule: "FREQ=WEEKLY;BYDAY=MO",
	})
	require.NoError(t, err)

	h := NewCalendarEventHandler(env.events, env.users, nil, ny, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest("GET", "/api/events?start=2026-10-10&end=2026-11-08", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got []string
	for _, in := range decode[[]model.EventInstance](t, rec) {
		got = append(got, in.OccurrenceStart.In(ny).Format("Mon 01-02 15:04"))
	}
	assert.Equal(t, []string{"Mon 10-12 20:00", "Mon 10-19 20:00", "Mon 10-26 20:00", "Mon 11-02 20:00"}, got)
}

func TestEventListRequiresRange(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/events",
		"/api/events?start=2026-03-09",
		"/api/events?start=bad&end=2026-03-10",
		"/api/events?start=2026-03-10&end=2026-03-09",
	} {
		assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", path, nil).Code, path)
	}
}

func TestEventUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "Alice")
	event := env.createEvent(t, map[string]any{
		"title": "Lunch", "start_time": "2026-03-09T12:00:00Z", "end_time": "2026-03-09T13:00:00Z",
	})
	path := fmt.Sprintf("/api/events/%d", event.ID)

	rec := env.do(t, "PUT", path, map[string]any{
		"title": "Team lunch", "start_time": "2026-03-09T12:30:00Z", "end_time": "2026-03-09T13:30:00Z",
		"location": "Cafe", "owner_id": owner.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.CalendarEvent](t, rec)
	assert.Equal(t, "Team lunch", updated.Title)
	assert.Equal(t, "Cafe", updated.Location)
	require.NotNil(t, updated.OwnerID)
	assert.Equal(t, owner.ID, *updated.OwnerID)

	assert.Equal(t, http.StatusOK, env.do(t, "GET", path, nil).Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, "DELETE", path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "PUT", path, map[string]any{"title": "x"}).Code)
}

const importDoc = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:a@example.com\r\n" +
	"SUMMARY:Planning\r\n" +
	"DTSTART:20260310T140000Z\r\n" +
	"DTEND:20260310T150000Z\r\n" +
	"RRULE:FREQ=WEEKLY;BYDAY=TU\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:b@example.com\r\n" +
	"SUMMARY:Holiday\r\n" +
	"DTSTART;VALUE=DATE:20260401\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type importResponse struct {
	Imported int                   `json:"imported"`
	Events   []model.CalendarEvent `json:"events"`
}

func TestEventImportRaw(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "Alice")

	rec := env.do(t, "POST", fmt.Sprintf("/api/events/import?owner=%d", owner.ID), importDoc)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[importResponse](t, rec)
	assert.Equal(t, 2, resp.Imported)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=TU", resp.Events[0].RecurrenceRule)
	for _, e := range resp.Events {
		require.NotNil(t, e.OwnerID)
		assert.Equal(t, owner.ID, *e.OwnerID)
	}
	assert.True(t, resp.Events[1].AllDay)

	stored, err := env.events.List()
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestEventImportMultipart(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "team.ics")
	require.NoError(t, err)
	_, err = fw.Write([]byte(importDoc))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/events/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["imported"])
}

func TestEventImportErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/events/import", "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "calendar has no events", errorMessage(t, rec))

	rec = env.do(t, "POST", "/api/events/import", "not a calendar")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/events/import?owner=77", importDoc)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "owner not found", errorMessage(t, rec))
}
