package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/store"
	"github.com/dukerupert/cadence/internal/websocket"
)

const defaultNotificationLimit = 50

type NotificationHandler struct {
	broadcaster
	notifications *store.NotificationStore
	logger        *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, hub *websocket.Hub, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{broadcaster: broadcaster{hub}, notifications: ns, logger: logger}
}

// List handles GET /api/notifications?user=&unread=&limit=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	unread, err := queryBool(r, "unread")
	if err != nil {
		writeError(w, http.StatusBadRequest, "unread must be a boolean")
		return
	}
	limit := defaultNotificationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	list, err := h.notifications.List(userID, unread != nil && *unread, limit)
	if err != nil {
		h.logger.Error("list notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// UnreadCount handles GET /api/notifications/unread-count?user=
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := h.notifications.UnreadCount(userID)
	if err != nil {
		h.logger.Error("count unread notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.notifications.GetByID(id)
	if err != nil {
		h.logger.Error("get notification", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get notification")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}

	if err := h.notifications.MarkRead(id); err != nil {
		h.logger.Error("mark notification read", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update notification")
		return
	}

	n, err := h.notifications.GetByID(id)
	if err != nil || n == nil {
		h.logger.Error("reload notification", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get notification")
		return
	}
	h.broadcast("notification", "updated", id)
	writeJSON(w, http.StatusOK, n)
}

// MarkAllRead handles POST /api/notifications/read-all?user=
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.notifications.MarkAllRead(userID)
	if err != nil {
		h.logger.Error("mark all notifications read", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update notifications")
		return
	}
	if updated > 0 {
		h.broadcast("notification", "updated", 0)
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.notifications.GetByID(id)
	if err != nil {
		h.logger.Error("get notification", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get notification")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}

	if err := h.notifications.Delete(id); err != nil {
		h.logger.Error("delete notification", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}
	h.broadcast("notification", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
