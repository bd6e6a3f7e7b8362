package model

import "time"

type CalendarEvent struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	AllDay         bool      `json:"all_day"`
	Location       string    `json:"location"`
	OwnerID        *int64    `json:"owner_id"`
	RecurrenceRule string    `json:"recurrence_rule"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsRecurring reports whether the event carries a recurrence rule.
func (e CalendarEvent) IsRecurring() bool {
	return e.RecurrenceRule != ""
}

// EventInstance is a single concrete occurrence of a calendar event. For
// non-recurring events there is exactly one instance and Recurring is false.
type EventInstance struct {
	CalendarEvent
	Recurring       bool      `json:"recurring"`
	OccurrenceStart time.Time `json:"occurrence_start"`
	OccurrenceEnd   time.Time `json:"occurrence_end"`
}
