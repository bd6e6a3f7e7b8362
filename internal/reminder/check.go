package reminder

import (
	"fmt"
	"math"
	"time"

	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/recurrence"
)

// window is the tolerance around an event reminder offset. A scan every
// minute therefore catches each offset at least once.
const window = time.Minute

// Check returns the notifications due at now that are not already present
// unread in existing. Results are ordered tasks first, then events, and never
// contain two notifications with the same key.
//
// Check is pure: the caller persists the result and merges it into existing
// before the next call. Recurring events are expanded in loc so a weekly rule
// keeps its local weekday and wall-clock time across DST changes.
func Check(now time.Time, tasks []model.Task, events []model.CalendarEvent, existing []model.Notification, prefs model.ReminderPreferences, loc *time.Location) []model.Notification {
	seen := make(map[model.NotificationKey]bool, len(existing))
	for _, n := range existing {
		if !n.Read {
			seen[n.Key()] = true
		}
	}

	var out []model.Notification
	add := func(candidates []model.Notification) {
		for _, n := range candidates {
			k := n.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, n)
		}
	}
	add(CheckTasks(now, tasks, prefs))
	add(CheckEvents(now, events, prefs, loc))
	return out
}

// CheckTasks returns upcoming and overdue candidates for incomplete tasks
// without deduplication. A task is upcoming when its due date lies in
// (now, now+UpcomingReminderHours] and overdue once the due date has passed.
func CheckTasks(now time.Time, tasks []model.Task, prefs model.ReminderPreferences) []model.Notification {
	var out []model.Notification
	horizon := time.Duration(prefs.UpcomingReminderHours) * time.Hour

	for _, t := range tasks {
		if t.Completed || t.DueDate.IsZero() {
			continue
		}
		taskID := t.ID
		until := t.DueDate.Sub(now)

		switch {
		case until > 0 && until <= horizon:
			hours := int(math.Ceil(until.Hours()))
			out = append(out, model.Notification{
				UserID:       t.AssigneeID,
				Type:         model.NotifTypeUpcoming,
				TaskID:       &taskID,
				ReminderTime: prefs.UpcomingReminderHours * 60,
				Title:        "Task Due Soon",
				Message:      fmt.Sprintf("%s is due in %s", t.Title, plural(hours, "hour")),
				CreatedAt:    now,
			})
		case until < 0:
			out = append(out, model.Notification{
				UserID:       t.AssigneeID,
				Type:         model.NotifTypeOverdue,
				TaskID:       &taskID,
				ReminderTime: 0,
				Title:        "Task Overdue",
				Message:      fmt.Sprintf("%s is overdue", t.Title),
				CreatedAt:    now,
			})
		}
	}
	return out
}

// CheckEvents returns event reminder candidates without deduplication. An
// event occurrence produces a reminder for every offset its start lies within
// one minute of. Recurring events are expanded first; each occurrence is
// reminded separately. An event whose rule does not parse is treated as a
// single occurrence.
func CheckEvents(now time.Time, events []model.CalendarEvent, prefs model.ReminderPreferences, loc *time.Location) []model.Notification {
	if len(prefs.EventReminderTimes) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	rangeStart, rangeEnd := Lookahead(now, prefs)

	var out []model.Notification
	for _, e := range events {
		if e.StartTime.IsZero() {
			continue
		}
		for _, occ := range occurrences(e, loc, rangeStart, rangeEnd) {
			for _, offset := range prefs.EventReminderTimes {
				target := occ.Start.Add(-time.Duration(offset) * time.Minute)
				if d := target.Sub(now); d < -window || d > window {
					continue
				}
				eventID := e.ID
				n := model.Notification{
					UserID:       e.OwnerID,
					Type:         model.NotifTypeEventReminder,
					EventID:      &eventID,
					ReminderTime: offset,
					Title:        "Event Reminder",
					Message:      eventMessage(e.Title, offset),
					CreatedAt:    now,
				}
				if e.IsRecurring() {
					start := occ.Start
					n.OccurrenceStart = &start
				}
				out = append(out, n)
			}
		}
	}
	return out
}

// Lookahead returns the range of event start times that can match any
// configured offset at now.
func Lookahead(now time.Time, prefs model.ReminderPreferences) (time.Time, time.Time) {
	maxOffset := 0
	for _, o := range prefs.EventReminderTimes {
		if o > maxOffset {
			maxOffset = o
		}
	}
	return now.Add(-2 * window), now.Add(time.Duration(maxOffset)*time.Minute + 2*window)
}

func occurrences(e model.CalendarEvent, loc *time.Location, rangeStart, rangeEnd time.Time) []recurrence.Occurrence {
	if !e.IsRecurring() {
		return []recurrence.Occurrence{{Start: e.StartTime, End: e.EndTime}}
	}
	// ExpandRule falls back to the stored occurrence on a parse error.
	occs, _ := recurrence.ExpandRule(e.RecurrenceRule, e.StartTime.In(loc), e.EndTime.In(loc), rangeStart, rangeEnd)
	return occs
}

func eventMessage(title string, offset int) string {
	if offset == 0 {
		return fmt.Sprintf("%s is starting now", title)
	}
	return fmt.Sprintf("%s starts in %s", title, describeOffset(offset))
}

func describeOffset(minutes int) string {
	switch {
	case minutes >= 1440 && minutes%1440 == 0:
		return plural(minutes/1440, "day")
	case minutes >= 60 && minutes%60 == 0:
		return plural(minutes/60, "hour")
	}
	return plural(minutes, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
