package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/push"
	"github.com/dukerupert/cadence/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	users     *store.UserStore
	service   *push.Service
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, us *store.UserStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, users: us, service: svc, logger: logger}
}

type subscribeRequest struct {
	UserID     int64  `json:"user_id"`
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}
	if req.UserID < 1 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	user, err := h.users.GetByID(req.UserID)
	if err != nil {
		h.logger.Error("get push user", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}
	if user == nil {
		writeError(w, http.StatusBadRequest, "user not found")
		return
	}

	sub, err := h.pushStore.CreateSubscription(req.UserID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}?user=
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	userID, err := queryID(r, "user")
	if err != nil || userID == nil {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	if err := h.pushStore.DeleteSubscription(id, *userID); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions?user=
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, err := queryID(r, "user")
	if err != nil || userID == nil {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	subs, err := h.pushStore.ListByUser(*userID)
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}
