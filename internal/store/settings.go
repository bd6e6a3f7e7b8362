package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

const (
	keyUpcomingReminderHours = "upcoming_reminder_hours"
	keyEventReminderTimes    = "event_reminder_times"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) GetAll() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("get all settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *SettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// ReminderPreferences reads the reminder settings. Missing or unparsable
// values fall back to the defaults.
func (s *SettingsStore) ReminderPreferences() (model.ReminderPreferences, error) {
	prefs := model.DefaultReminderPreferences()

	settings, err := s.GetAll()
	if err != nil {
		return prefs, err
	}

	if v, ok := settings[keyUpcomingReminderHours]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			prefs.UpcomingReminderHours = n
		}
	}
	if v, ok := settings[keyEventReminderTimes]; ok {
		if offsets, err := ParseOffsets(v); err == nil {
			prefs.EventReminderTimes = offsets
		}
	}
	return prefs, nil
}

func (s *SettingsStore) SetReminderPreferences(prefs model.ReminderPreferences) error {
	if err := s.Set(keyUpcomingReminderHours, strconv.Itoa(prefs.UpcomingReminderHours)); err != nil {
		return err
	}
	return s.Set(keyEventReminderTimes, FormatOffsets(prefs.EventReminderTimes))
}

// ParseOffsets parses a comma separated list of minute offsets, e.g. "5,15,30".
// The result is sorted and free of duplicates.
func ParseOffsets(v string) ([]int, error) {
	offsets := []int{}
	seen := make(map[int]bool)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid reminder offset %q", part)
		}
		if !seen[n] {
			seen[n] = true
			offsets = append(offsets, n)
		}
	}
	sort.Ints(offsets)
	return offsets, nil
}

func FormatOffsets(offsets []int) string {
	parts := make([]string, len(offsets))
	for i, o := range offsets {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}
