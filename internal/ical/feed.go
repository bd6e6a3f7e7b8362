package ical

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/dukerupert/cadence/internal/model"
)

const (
	productID   = "-//cadence//calendar feed//EN"
	utcFormat   = "20060102T150405Z"
	localFormat = "20060102T150405"
)

// Feed renders tasks and events as an iCalendar document. Events keep their
// recurrence rule and get a display alarm per reminder offset. Incomplete
// tasks appear as all-day entries on their due date in loc.
func Feed(tasks []model.Task, events []model.CalendarEvent, prefs model.ReminderPreferences, name string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	zone := tzid(loc)
	if zone != "" {
		cal.SetXWRTimezone(zone)
	}

	for _, e := range events {
		addEvent(cal, e, prefs.EventReminderTimes, loc, zone)
	}
	for _, t := range tasks {
		if t.Completed || t.DueDate.IsZero() {
			continue
		}
		addTask(cal, t, loc)
	}
	return cal.Serialize()
}

func addEvent(cal *ics.Calendar, e model.CalendarEvent, offsets []int, loc *time.Location, zone string) {
	ve := cal.AddEvent(fmt.Sprintf("event-%d@cadence", e.ID))
	ve.SetDtStampTime(stamp(e.UpdatedAt))
	ve.SetSummary(e.Title)
	if e.Description != "" {
		ve.SetDescription(e.Description)
	}
	if e.Location != "" {
		ve.SetLocation(e.Location)
	}
	if e.AllDay {
		start := e.StartTime.In(loc)
		end := e.EndTime.In(loc)
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(end)
	} else {
		setTime(ve, ics.ComponentPropertyDtStart, e.StartTime, loc, zone)
		setTime(ve, ics.ComponentPropertyDtEnd, e.EndTime, loc, zone)
	}
	if e.IsRecurring() {
		ve.AddRrule(e.RecurrenceRule)
	}

	for _, offset := range offsets {
		alarm := ve.AddAlarm()
		alarm.SetAction(ics.ActionDisplay)
		alarm.SetTrigger(fmt.Sprintf("-PT%dM", offset))
		alarm.SetProperty(ics.ComponentPropertyDescription, e.Title)
	}
}

func addTask(cal *ics.Calendar, t model.Task, loc *time.Location) {
	ve := cal.AddEvent(fmt.Sprintf("task-%d@cadence", t.ID))
	ve.SetDtStampTime(stamp(t.UpdatedAt))
	ve.SetSummary(t.Title)
	if t.Description != "" {
		ve.SetDescription(t.Description)
	}
	due := t.DueDate.In(loc)
	ve.SetAllDayStartAt(due)
	ve.SetAllDayEndAt(due.AddDate(0, 0, 1))
	ve.SetProperty(ics.ComponentPropertyCategories, "TASK")
	if p := priority(t.Priority); p > 0 {
		ve.SetPriority(p)
	}
}

// tzid returns the IANA name of loc, or "" when loc is UTC or has no name
// a client could resolve.
func tzid(loc *time.Location) string {
	name := loc.String()
	if name == "UTC" || name == "Local" {
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}
	return name
}

// setTime writes a local time with a TZID when zone is set, so clients expand
// the RRULE on local days and keep the wall-clock time across DST changes.
func setTime(ve *ics.VEvent, prop ics.ComponentProperty, t time.Time, loc *time.Location, zone string) {
	if zone == "" {
		ve.SetProperty(prop, t.UTC().Format(utcFormat))
		return
	}
	ve.SetProperty(prop, t.In(loc).Format(localFormat), ics.WithTZID(zone))
}

// priority maps to the iCalendar scale where 1 is highest and 0 undefined.
func priority(p model.Priority) int {
	switch p {
	case model.PriorityHigh:
		return 1
	case model.PriorityMedium:
		return 5
	case model.PriorityLow:
		return 9
	}
	return 0
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
