package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationColumns = `id, user_id, type, task_id, event_id, occurrence_start, reminder_time, title, message, read, created_at`

func scanNotification(sc rowScanner) (model.Notification, error) {
	var n model.Notification
	var userID, taskID, eventID sql.NullInt64
	var occurrence sql.NullTime
	var notifType string
	var readInt int

	err := sc.Scan(&n.ID, &userID, &notifType, &taskID, &eventID, &occurrence, &n.ReminderTime, &n.Title, &n.Message, &readInt, &n.CreatedAt)
	if err != nil {
		return n, err
	}

	n.Type = model.NotificationType(notifType)
	n.Read = readInt != 0
	if userID.Valid {
		n.UserID = &userID.Int64
	}
	if taskID.Valid {
		n.TaskID = &taskID.Int64
	}
	if eventID.Valid {
		n.EventID = &eventID.Int64
	}
	if occurrence.Valid {
		o := occurrence.Time
		n.OccurrenceStart = &o
	}
	return n, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// Insert stores n unless an unread notification with the same key exists.
// It returns the stored notification, or nil when n was a duplicate.
func (s *NotificationStore) Insert(n model.Notification) (*model.Notification, error) {
	var occurrence sql.NullTime
	if n.OccurrenceStart != nil {
		occurrence = sql.NullTime{Time: n.OccurrenceStart.UTC(), Valid: true}
	}
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO notifications (user_id, type, task_id, event_id, occurrence_start, reminder_time, title, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(n.UserID), string(n.Type), nullInt64(n.TaskID), nullInt64(n.EventID), occurrence,
		n.ReminderTime, n.Title, n.Message, createdAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *NotificationStore) GetByID(id int64) (*model.Notification, error) {
	n, err := scanNotification(s.db.QueryRow(`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return &n, nil
}

// List returns notifications newest first. A nil userID lists every user's
// notifications; otherwise the user's own plus the unaddressed ones.
func (s *NotificationStore) List(userID *int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE 1 = 1`
	var args []any
	if userID != nil {
		query += ` AND (user_id = ? OR user_id IS NULL)`
		args = append(args, *userID)
	}
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.query(query, args...)
}

// ListUnread returns every unread notification, used for deduplication.
func (s *NotificationStore) ListUnread() ([]model.Notification, error) {
	return s.query(`SELECT ` + notificationColumns + ` FROM notifications WHERE read = 0 ORDER BY id ASC`)
}

func (s *NotificationStore) query(query string, args ...any) ([]model.Notification, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NotificationStore) UnreadCount(userID *int64) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE read = 0`
	var args []any
	if userID != nil {
		query += ` AND (user_id = ? OR user_id IS NULL)`
		args = append(args, *userID)
	}
	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationStore) MarkRead(id int64) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET read = 1, read_at = ? WHERE id = ? AND read = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification visible to userID as read and
// returns how many changed.
func (s *NotificationStore) MarkAllRead(userID *int64) (int64, error) {
	query := `UPDATE notifications SET read = 1, read_at = ? WHERE read = 0`
	args := []any{time.Now().UTC()}
	if userID != nil {
		query += ` AND (user_id = ? OR user_id IS NULL)`
		args = append(args, *userID)
	}
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// DeleteReadBefore removes read notifications created before the given time.
func (s *NotificationStore) DeleteReadBefore(before time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM notifications WHERE read = 1 AND created_at < ?`,
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup notifications: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
