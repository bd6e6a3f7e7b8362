package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `id, title, description, start_time, end_time, all_day, location, owner_id, recurrence_rule, created_at, updated_at`

func scanEvent(sc rowScanner) (model.CalendarEvent, error) {
	var e model.CalendarEvent
	var allDayInt int
	var ownerID sql.NullInt64

	err := sc.Scan(&e.ID, &e.Title, &e.Description, &e.StartTime, &e.EndTime, &allDayInt, &e.Location, &ownerID, &e.RecurrenceRule, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}

	e.AllDay = allDayInt != 0
	if ownerID.Valid {
		e.OwnerID = &ownerID.Int64
	}
	return e, nil
}

func eventArgs(e model.CalendarEvent) (allDayInt int, ownerID sql.NullInt64) {
	if e.AllDay {
		allDayInt = 1
	}
	if e.OwnerID != nil {
		ownerID = sql.NullInt64{Int64: *e.OwnerID, Valid: true}
	}
	return allDayInt, ownerID
}

func (s *EventStore) Create(e model.CalendarEvent) (*model.CalendarEvent, error) {
	allDayInt, ownerID := eventArgs(e)

	result, err := s.db.Exec(
		`INSERT INTO calendar_events (title, description, start_time, end_time, all_day, location, owner_id, recurrence_rule)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Title, e.Description, e.StartTime.UTC(), e.EndTime.UTC(), allDayInt, e.Location, ownerID, e.RecurrenceRule,
	)
	if err != nil {
		return nil, fmt.Errorf("insert calendar event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *EventStore) GetByID(id int64) (*model.CalendarEvent, error) {
	e, err := scanEvent(s.db.QueryRow(`SELECT `+eventColumns+` FROM calendar_events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query calendar event: %w", err)
	}
	return &e, nil
}

// ListByDateRange returns non-recurring events overlapping [start, end).
// Recurring events are listed separately by ListRecurring because their
// stored times only describe the first occurrence.
func (s *EventStore) ListByDateRange(start, end time.Time) ([]model.CalendarEvent, error) {
	return s.query(
		`SELECT `+eventColumns+` FROM calendar_events
		 WHERE recurrence_rule = '' AND start_time < ? AND end_time > ?
		 ORDER BY all_day DESC, start_time ASC`,
		end.UTC(), start.UTC(),
	)
}

// ListRecurring returns recurring events whose first occurrence starts before end.
func (s *EventStore) ListRecurring(end time.Time) ([]model.CalendarEvent, error) {
	return s.query(
		`SELECT `+eventColumns+` FROM calendar_events
		 WHERE recurrence_rule != '' AND start_time < ?
		 ORDER BY start_time ASC`,
		end.UTC(),
	)
}

// List returns every event, used by the calendar feed.
func (s *EventStore) List() ([]model.CalendarEvent, error) {
	return s.query(`SELECT ` + eventColumns + ` FROM calendar_events ORDER BY start_time ASC`)
}

func (s *EventStore) query(query string, args ...any) ([]model.CalendarEvent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calendar events: %w", err)
	}
	defer rows.Close()

	var events []model.CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *EventStore) Update(id int64, e model.CalendarEvent) (*model.CalendarEvent, error) {
	allDayInt, ownerID := eventArgs(e)

	_, err := s.db.Exec(
		`UPDATE calendar_events
		 SET title = ?, description = ?, start_time = ?, end_time = ?, all_day = ?, location = ?, owner_id = ?, recurrence_rule = ?
		 WHERE id = ?`,
		e.Title, e.Description, e.StartTime.UTC(), e.EndTime.UTC(), allDayInt, e.Location, ownerID, e.RecurrenceRule, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update calendar event: %w", err)
	}

	return s.GetByID(id)
}

func (s *EventStore) Delete(id int64) error {
	_, err := s.db.Exec("DELETE FROM calendar_events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}
