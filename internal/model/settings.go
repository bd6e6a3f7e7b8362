package model

import "time"

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReminderPreferences controls which reminders the scheduler emits.
type ReminderPreferences struct {
	UpcomingReminderHours int   `json:"upcoming_reminder_hours"`
	EventReminderTimes    []int `json:"event_reminder_times"`
}

// DefaultReminderPreferences mirrors the values seeded by the migrations.
func DefaultReminderPreferences() ReminderPreferences {
	return ReminderPreferences{
		UpcomingReminderHours: 24,
		EventReminderTimes:    []int{5, 15, 30, 60, 1440},
	}
}
