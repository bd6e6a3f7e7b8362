package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/reminder"
	"github.com/dukerupert/cadence/internal/store"
)

type ReminderHandler struct {
	settings  *store.SettingsStore
	scheduler *reminder.Scheduler
	logger    *slog.Logger
}

func NewReminderHandler(ss *store.SettingsStore, scheduler *reminder.Scheduler, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{settings: ss, scheduler: scheduler, logger: logger}
}

// GetPreferences handles GET /api/settings/reminders
func (h *ReminderHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.settings.ReminderPreferences()
	if err != nil {
		h.logger.Error("get reminder preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reminder preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /api/settings/reminders. Offsets are sorted
// and deduplicated before they are stored.
func (h *ReminderHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req model.ReminderPreferences
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.UpcomingReminderHours < 0 {
		writeError(w, http.StatusBadRequest, "upcoming_reminder_hours must not be negative")
		return
	}
	offsets, err := store.ParseOffsets(store.FormatOffsets(req.EventReminderTimes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "event_reminder_times must be non-negative minutes")
		return
	}
	req.EventReminderTimes = offsets

	if err := h.settings.SetReminderPreferences(req); err != nil {
		h.logger.Error("set reminder preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save reminder preferences")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Run handles POST /api/reminders/run, forcing an immediate reminder pass.
func (h *ReminderHandler) Run(w http.ResponseWriter, r *http.Request) {
	created, err := h.scheduler.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("run reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to run reminders")
		return
	}
	if created == nil {
		created = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"created":       len(created),
		"notifications": created,
	})
}
