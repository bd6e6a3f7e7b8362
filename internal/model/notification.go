package model

import "time"

type NotificationType string

// Notification type constants
const (
	NotifTypeUpcoming      NotificationType = "upcoming"
	NotifTypeOverdue       NotificationType = "overdue"
	NotifTypeEventReminder NotificationType = "event-reminder"
)

type Notification struct {
	ID              int64            `json:"id"`
	UserID          *int64           `json:"user_id"`
	Type            NotificationType `json:"type"`
	TaskID          *int64           `json:"task_id"`
	EventID         *int64           `json:"event_id"`
	OccurrenceStart *time.Time       `json:"occurrence_start"`
	ReminderTime    int              `json:"reminder_time"`
	Title           string           `json:"title"`
	Message         string           `json:"message"`
	Read            bool             `json:"read"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NotificationKey identifies the entity and reminder a notification is about.
// At most one unread notification exists per key.
type NotificationKey struct {
	Type            NotificationType
	TaskID          int64
	EventID         int64
	OccurrenceStart int64
	ReminderTime    int
}

func (n Notification) Key() NotificationKey {
	k := NotificationKey{Type: n.Type, ReminderTime: n.ReminderTime}
	if n.TaskID != nil {
		k.TaskID = *n.TaskID
	}
	if n.EventID != nil {
		k.EventID = *n.EventID
	}
	if n.OccurrenceStart != nil {
		k.OccurrenceStart = n.OccurrenceStart.Unix()
	}
	return k
}
