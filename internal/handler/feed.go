package handler

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/cadence/internal/ical"
	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/store"
)

// FeedHandler serves per-user iCalendar subscriptions.
type FeedHandler struct {
	users    *store.UserStore
	tasks    *store.TaskStore
	events   *store.EventStore
	settings *store.SettingsStore
	loc      *time.Location
	logger   *slog.Logger
}

func NewFeedHandler(us *store.UserStore, ts *store.TaskStore, es *store.EventStore, ss *store.SettingsStore, loc *time.Location, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{users: us, tasks: ts, events: es, settings: ss, loc: loc, logger: logger}
}

// Calendar handles GET /feeds/{user}/calendar.ics?token=. The feed holds the
// user's assigned tasks plus events they own or that belong to nobody.
func (h *FeedHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	userID, err := parsePathID(r, "user")
	if err != nil {
		writeError(w, http.StatusNotFound, "feed not found")
		return
	}
	token := r.URL.Query().Get("token")

	user, err := h.users.GetByID(userID)
	if err != nil {
		h.logger.Error("get feed user", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "feed not found")
		return
	}

	hash, err := h.users.FeedTokenHash(userID)
	if err != nil {
		h.logger.Error("get feed token", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	if hash == "" || token == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid feed token")
		return
	}

	tasks, err := h.tasks.List(store.TaskFilter{AssigneeID: &userID})
	if err != nil {
		h.logger.Error("list feed tasks", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	all, err := h.events.List()
	if err != nil {
		h.logger.Error("list feed events", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	var events []model.CalendarEvent
	for _, e := range all {
		if e.OwnerID == nil || *e.OwnerID == userID {
			events = append(events, e)
		}
	}

	prefs, err := h.settings.ReminderPreferences()
	if err != nil {
		h.logger.Warn("load reminder preferences for feed", "error", err)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ical.Feed(tasks, events, prefs, user.Name, h.loc)))
}
