package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/cadence/internal/ical"
	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/recurrence"
	"github.com/dukerupert/cadence/internal/store"
	"github.com/dukerupert/cadence/internal/websocket"
)

const maxImportSize = 1 << 20

type CalendarEventHandler struct {
	broadcaster
	events *store.EventStore
	users  *store.UserStore
	loc    *time.Location
	logger *slog.Logger
}

func NewCalendarEventHandler(es *store.EventStore, us *store.UserStore, hub *websocket.Hub, loc *time.Location, logger *slog.Logger) *CalendarEventHandler {
	return &CalendarEventHandler{broadcaster: broadcaster{hub}, events: es, users: us, loc: loc, logger: logger}
}

type eventRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	AllDay         bool   `json:"all_day"`
	Location       string `json:"location"`
	OwnerID        *int64 `json:"owner_id"`
	RecurrenceRule string `json:"recurrence_rule"`
}

func (h *CalendarEventHandler) parseAndValidate(w http.ResponseWriter, r *http.Request) (model.CalendarEvent, bool) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return model.CalendarEvent{}, false
	}

	e := model.CalendarEvent{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		AllDay:      req.AllDay,
		Location:    req.Location,
		OwnerID:     req.OwnerID,
	}
	if e.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return e, false
	}

	var err error
	e.StartTime, err = parseFlexibleTime(req.StartTime, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_time must be RFC3339 or YYYY-MM-DD format")
		return e, false
	}
	e.EndTime, err = parseFlexibleTime(req.EndTime, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_time must be RFC3339 or YYYY-MM-DD format")
		return e, false
	}
	if e.EndTime.Before(e.StartTime) {
		writeError(w, http.StatusBadRequest, "start_time must not be after end_time")
		return e, false
	}

	if rule := strings.TrimSpace(req.RecurrenceRule); rule != "" {
		p, err := recurrence.Parse(rule)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid recurrence_rule: "+err.Error())
			return e, false
		}
		e.RecurrenceRule = p.String()
	}

	if e.OwnerID != nil {
		user, err := h.users.GetByID(*e.OwnerID)
		if err != nil {
			h.logger.Error("check owner", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check owner")
			return e, false
		}
		if user == nil {
			writeError(w, http.StatusBadRequest, "owner not found")
			return e, false
		}
	}
	return e, true
}

func (h *CalendarEventHandler) Create(w http.ResponseWriter, r *http.Request) {
	e, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}

	event, err := h.events.Create(e)
	if err != nil {
		h.logger.Error("create calendar event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	h.broadcast("calendar_event", "created", event.ID)
	writeJSON(w, http.StatusCreated, event)
}

// List handles GET /api/events?start=&end= and returns every occurrence
// overlapping the range, recurring events expanded.
func (h *CalendarEventHandler) List(w http.ResponseWriter, r *http.Request) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr == "" || endStr == "" {
		writeError(w, http.StatusBadRequest, "start and end query parameters are required")
		return
	}

	start, err := parseFlexibleTime(startStr, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339 or YYYY-MM-DD format")
		return
	}
	end, err := parseFlexibleTime(endStr, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC3339 or YYYY-MM-DD format")
		return
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}

	instances, err := h.instances(start, end)
	if err != nil {
		h.logger.Error("list calendar events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

func (h *CalendarEventHandler) instances(start, end time.Time) ([]model.EventInstance, error) {
	single, err := h.events.ListByDateRange(start, end)
	if err != nil {
		return nil, err
	}
	recurring, err := h.events.ListRecurring(end)
	if err != nil {
		return nil, err
	}

	out := make([]model.EventInstance, 0, len(single))
	for _, e := range single {
		out = append(out, model.EventInstance{CalendarEvent: e, OccurrenceStart: e.StartTime, OccurrenceEnd: e.EndTime})
	}
	for _, e := range recurring {
		// BYDAY and wall-clock times are local to h.loc.
		occs, err := recurrence.ExpandRule(e.RecurrenceRule, e.StartTime.In(h.loc), e.EndTime.In(h.loc), start, end)
		if err != nil {
			h.logger.Warn("expand recurrence", "event_id", e.ID, "rule", e.RecurrenceRule, "error", err)
		}
		for _, occ := range occs {
			out = append(out, model.EventInstance{CalendarEvent: e, Recurring: err == nil, OccurrenceStart: occ.Start.UTC(), OccurrenceEnd: occ.End.UTC()})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AllDay != out[j].AllDay {
			return out[i].AllDay
		}
		return out[i].OccurrenceStart.Before(out[j].OccurrenceStart)
	})
	return out, nil
}

func (h *CalendarEventHandler) load(w http.ResponseWriter, r *http.Request) (*model.CalendarEvent, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	event, err := h.events.GetByID(id)
	if err != nil {
		h.logger.Error("get calendar event", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return nil, false
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return nil, false
	}
	return event, true
}

func (h *CalendarEventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *CalendarEventHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	e, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}

	event, err := h.events.Update(existing.ID, e)
	if err != nil {
		h.logger.Error("update calendar event", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	h.broadcast("calendar_event", "updated", event.ID)
	writeJSON(w, http.StatusOK, event)
}

func (h *CalendarEventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := h.events.Delete(existing.ID); err != nil {
		h.logger.Error("delete calendar event", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	h.broadcast("calendar_event", "deleted", existing.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Import handles POST /api/events/import. The body is an iCalendar document,
// either raw or as the "file" field of a multipart form. ?owner=<id> assigns
// every imported event.
func (h *CalendarEventHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)

	owner, err := queryID(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if owner != nil {
		user, err := h.users.GetByID(*owner)
		if err != nil {
			h.logger.Error("check owner", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check owner")
			return
		}
		if user == nil {
			writeError(w, http.StatusBadRequest, "owner not found")
			return
		}
	}

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()
		body = file
	}

	parsed, err := ical.Import(body, h.loc)
	if err != nil {
		if errors.Is(err, ical.ErrEmpty) {
			writeError(w, http.StatusBadRequest, "calendar has no events")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid calendar file")
		return
	}

	created := make([]model.CalendarEvent, 0, len(parsed))
	for _, e := range parsed {
		e.OwnerID = owner
		event, err := h.events.Create(e)
		if err != nil {
			h.logger.Error("import calendar event", "title", e.Title, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to import events")
			return
		}
		created = append(created, *event)
	}

	h.broadcast("calendar_event", "imported", 0)
	writeJSON(w, http.StatusCreated, map[string]any{"imported": len(created), "events": created})
}
