package allocation

import (
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

const (
	// WorkdayHours is the nominal capacity of one person for one day.
	WorkdayHours = 8.0
	// DefaultHoursPerDay is assumed for tasks without an estimate.
	DefaultHoursPerDay = 4.0
	// DefaultSpanDays is the span of a task without a start date: the days
	// immediately before its due date.
	DefaultSpanDays = 3
)

// Filter selects the window and the users to report.
type Filter struct {
	StartDate time.Time
	EndDate   time.Time
	// TeamMembers limits the report to these user IDs. Empty means everyone.
	TeamMembers []int64
	// ShowOverallocatedOnly drops users without an overallocated day.
	ShowOverallocatedOnly bool
}

// Estimate computes one ResourceAllocation per user over every calendar day
// from f.StartDate to f.EndDate inclusive, as seen in loc. Results follow the
// order of users. Completed tasks and tasks without an assignee are ignored,
// and hours falling outside the window are dropped.
func Estimate(tasks []model.Task, users []model.User, f Filter, loc *time.Location) []model.ResourceAllocation {
	if loc == nil {
		loc = time.UTC
	}
	if f.StartDate.IsZero() || f.EndDate.IsZero() {
		return []model.ResourceAllocation{}
	}
	numDays := DayCount(f.StartDate, f.EndDate, loc)
	if numDays < 1 {
		return []model.ResourceAllocation{}
	}
	first := civil(f.StartDate, loc)

	members := make(map[int64]bool, len(f.TeamMembers))
	for _, id := range f.TeamMembers {
		members[id] = true
	}

	byUser := make(map[int64][]model.Task)
	for _, t := range tasks {
		if t.Completed || t.AssigneeID == nil || t.DueDate.IsZero() {
			continue
		}
		byUser[*t.AssigneeID] = append(byUser[*t.AssigneeID], t)
	}

	out := []model.ResourceAllocation{}
	for _, u := range users {
		if len(members) > 0 && !members[u.ID] {
			continue
		}
		ra := estimateUser(u, byUser[u.ID], first, int(numDays), loc)
		if f.ShowOverallocatedOnly && ra.OverallocatedDays == 0 {
			continue
		}
		out = append(out, ra)
	}
	return out
}

func estimateUser(u model.User, tasks []model.Task, first time.Time, numDays int, loc *time.Location) model.ResourceAllocation {
	days := make([]model.DailyAllocation, numDays)
	for i := range days {
		d := first.AddDate(0, 0, i)
		days[i] = model.DailyAllocation{
			Date:  time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc),
			Tasks: []int64{},
		}
	}

	ra := model.ResourceAllocation{UserID: u.ID, UserName: u.Name}
	firstDay := dayNumber(first)

	for _, t := range tasks {
		spanStart, spanDays := Span(t, loc)
		perDay := HoursPerDay(t, spanDays)
		offset := dayNumber(spanStart) - firstDay
		for i := 0; i < spanDays; i++ {
			idx := offset + int64(i)
			if idx < 0 || idx >= int64(numDays) {
				continue
			}
			days[idx].Hours += perDay
			days[idx].Tasks = append(days[idx].Tasks, t.ID)
			if days[idx].Hours > WorkdayHours {
				ra.OverallocatedTaskDays++
			}
		}
	}

	var utilization float64
	for i := range days {
		days[i].Utilization = days[i].Hours / WorkdayHours * 100
		ra.TotalHours += days[i].Hours
		utilization += days[i].Utilization
		if days[i].Hours > WorkdayHours {
			ra.OverallocatedDays++
		}
	}
	ra.DailyAllocations = days
	ra.AverageUtilization = utilization / float64(numDays)
	return ra
}

// Span returns the first civil day a task occupies and how many days it
// spans. A task with a start date spans from that day up to, not including,
// its due day; a start on or after the due day collapses to the due day
// alone. Without a start date the task spans DefaultSpanDays.
func Span(t model.Task, loc *time.Location) (time.Time, int) {
	due := civil(t.DueDate, loc)
	if t.StartDate == nil || t.StartDate.IsZero() {
		return due.AddDate(0, 0, -DefaultSpanDays), DefaultSpanDays
	}
	start := civil(*t.StartDate, loc)
	n := int(dayNumber(due) - dayNumber(start))
	if n < 1 {
		return due, 1
	}
	return start, n
}

// HoursPerDay spreads the estimate evenly over spanDays, or assumes
// DefaultHoursPerDay when there is no positive estimate.
func HoursPerDay(t model.Task, spanDays int) float64 {
	if t.EstimatedHours == nil || *t.EstimatedHours <= 0 || spanDays < 1 {
		return DefaultHoursPerDay
	}
	return *t.EstimatedHours / float64(spanDays)
}

// DayCount returns the number of calendar days from start to end inclusive,
// as seen in loc. It is zero or negative when end falls on an earlier day.
func DayCount(start, end time.Time, loc *time.Location) int64 {
	if loc == nil {
		loc = time.UTC
	}
	return dayNumber(civil(end, loc)) - dayNumber(civil(start, loc)) + 1
}

// dayNumber counts days since the Unix epoch for a civil midnight.
func dayNumber(d time.Time) int64 {
	return d.Unix() / 86400
}

// civil maps t to midnight UTC of its calendar date in loc so that whole
// days can be counted without DST drift.
func civil(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
