package ical

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/recurrence"
)

// ErrEmpty is returned when a calendar contains no importable events.
var ErrEmpty = errors.New("calendar has no events")

// Import parses the VEVENTs of an iCalendar document. Date-only values are
// interpreted in loc. Events without a start are skipped, and recurrence
// rules that cannot be expanded are dropped so the event imports as a
// single occurrence.
func Import(r io.Reader, loc *time.Location) ([]model.CalendarEvent, error) {
	if loc == nil {
		loc = time.UTC
	}
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	var events []model.CalendarEvent
	for _, ve := range cal.Events() {
		e, err := parseEvent(ve, loc)
		if err != nil {
			slog.Warn("skip calendar entry", "uid", ve.Id(), "error", err)
			continue
		}
		events = append(events, e)
	}
	if len(events) == 0 {
		return nil, ErrEmpty
	}
	return events, nil
}

func parseEvent(ve *ics.VEvent, loc *time.Location) (model.CalendarEvent, error) {
	var e model.CalendarEvent

	dtStart := ve.GetProperty(ics.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return e, errors.New("missing DTSTART")
	}

	e.Title = propertyValue(ve, ics.ComponentPropertySummary)
	if e.Title == "" {
		e.Title = "(untitled)"
	}
	e.Description = propertyValue(ve, ics.ComponentPropertyDescription)
	e.Location = propertyValue(ve, ics.ComponentPropertyLocation)
	e.AllDay = isDate(dtStart)

	if e.AllDay {
		start, err := time.ParseInLocation("20060102", dtStart.Value, loc)
		if err != nil {
			return e, fmt.Errorf("parse DTSTART: %w", err)
		}
		e.StartTime = start
		e.EndTime = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ics.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := time.ParseInLocation("20060102", dtEnd.Value, loc); err == nil && end.After(start) {
				e.EndTime = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return e, fmt.Errorf("parse DTSTART: %w", err)
		}
		e.StartTime = start
		e.EndTime = start.Add(time.Hour)
		if end, err := ve.GetEndAt(); err == nil && end.After(start) {
			e.EndTime = end
		}
	}

	if rule := propertyValue(ve, ics.ComponentPropertyRrule); rule != "" {
		p, err := recurrence.Parse(rule)
		if err != nil {
			slog.Warn("drop unsupported recurrence", "uid", ve.Id(), "rule", rule, "error", err)
		} else {
			e.RecurrenceRule = p.String()
		}
	}
	return e, nil
}

func propertyValue(ve *ics.VEvent, prop ics.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func isDate(p *ics.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}
