package handler

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/store"
)

var hexColorRegexp = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

const defaultColor = "#3B82F6"

type UserHandler struct {
	users   *store.UserStore
	baseURL string
	logger  *slog.Logger
}

func NewUserHandler(us *store.UserStore, baseURL string, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: us, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

type userRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Color string `json:"color"`
}

func (h *UserHandler) parseAndValidate(w http.ResponseWriter, r *http.Request, excludeID int64) (userRequest, bool) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return req, false
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeError(w, http.StatusBadRequest, "email is invalid")
			return req, false
		}
	}
	if req.Color == "" {
		req.Color = defaultColor
	}
	if !hexColorRegexp.MatchString(req.Color) {
		writeError(w, http.StatusBadRequest, "color must be a hex color (e.g. #FF0000)")
		return req, false
	}

	exists, err := h.users.NameExists(req.Name, excludeID)
	if err != nil {
		h.logger.Error("check user name", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check name")
		return req, false
	}
	if exists {
		writeError(w, http.StatusConflict, "a user with that name already exists")
		return req, false
	}
	return req, true
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List()
	if err != nil {
		h.logger.Error("list users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseAndValidate(w, r, 0)
	if !ok {
		return
	}

	user, err := h.users.Create(req.Name, req.Email, req.Color)
	if err != nil {
		h.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) load(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	user, err := h.users.GetByID(id)
	if err != nil {
		h.logger.Error("get user", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return nil, false
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return user, true
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	req, ok := h.parseAndValidate(w, r, existing.ID)
	if !ok {
		return
	}

	user, err := h.users.Update(existing.ID, req.Name, req.Email, req.Color)
	if err != nil {
		h.logger.Error("update user", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Delete removes a user. Their tasks and events stay, unassigned.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(existing.ID); err != nil {
		h.logger.Error("delete user", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FeedToken issues a new calendar feed token, replacing any previous one.
// Only its bcrypt hash is stored, so the token is shown exactly once.
func (h *UserHandler) FeedToken(w http.ResponseWriter, r *http.Request) {
	user, ok := h.load(w, r)
	if !ok {
		return
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		h.logger.Error("generate feed token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	token := hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash feed token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	if err := h.users.SetFeedTokenHash(user.ID, string(hash)); err != nil {
		h.logger.Error("store feed token", "id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store token")
		return
	}

	path := fmt.Sprintf("/feeds/%d/calendar.ics?token=%s", user.ID, token)
	writeJSON(w, http.StatusCreated, map[string]string{
		"token": token,
		"url":   h.baseURL + path,
	})
}
