package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/store"
	"github.com/dukerupert/cadence/internal/websocket"
)

type TaskHandler struct {
	broadcaster
	tasks  *store.TaskStore
	users  *store.UserStore
	loc    *time.Location
	logger *slog.Logger
}

func NewTaskHandler(ts *store.TaskStore, us *store.UserStore, hub *websocket.Hub, loc *time.Location, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{broadcaster: broadcaster{hub}, tasks: ts, users: us, loc: loc, logger: logger}
}

type taskRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	DueDate        string   `json:"due_date"`
	StartDate      *string  `json:"start_date"`
	EstimatedHours *float64 `json:"estimated_hours"`
	Priority       string   `json:"priority"`
	AssigneeID     *int64   `json:"assignee_id"`
	Completed      bool     `json:"completed"`
}

func (h *TaskHandler) parseAndValidate(w http.ResponseWriter, r *http.Request) (model.Task, bool) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return model.Task{}, false
	}

	t := model.Task{
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		EstimatedHours: req.EstimatedHours,
		Priority:       model.Priority(strings.ToLower(strings.TrimSpace(req.Priority))),
		AssigneeID:     req.AssigneeID,
		Completed:      req.Completed,
	}
	if t.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return t, false
	}

	due, err := parseFlexibleTime(req.DueDate, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "due_date must be RFC3339 or YYYY-MM-DD format")
		return t, false
	}
	t.DueDate = due

	t.StartDate, err = parseOptionalTime(req.StartDate, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be RFC3339 or YYYY-MM-DD format")
		return t, false
	}
	if t.StartDate != nil && t.StartDate.After(t.DueDate) {
		writeError(w, http.StatusBadRequest, "start_date must not be after due_date")
		return t, false
	}

	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		writeError(w, http.StatusBadRequest, "estimated_hours must not be negative")
		return t, false
	}
	if !t.Priority.Valid() {
		writeError(w, http.StatusBadRequest, "priority must be high, medium, low or empty")
		return t, false
	}

	if t.AssigneeID != nil {
		user, err := h.users.GetByID(*t.AssigneeID)
		if err != nil {
			h.logger.Error("check assignee", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check assignee")
			return t, false
		}
		if user == nil {
			writeError(w, http.StatusBadRequest, "assignee not found")
			return t, false
		}
	}
	return t, true
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	t, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Create(t)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	h.broadcast("task", "created", task.ID)
	writeJSON(w, http.StatusCreated, task)
}

// List handles GET /api/tasks with optional ?assignee=<id>&completed=<bool>.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var f store.TaskFilter
	assignee, err := queryID(r, "assignee")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.AssigneeID = assignee
	completed, err := queryBool(r, "completed")
	if err != nil {
		writeError(w, http.StatusBadRequest, "completed must be true or false")
		return
	}
	f.Completed = completed

	tasks, err := h.tasks.List(f)
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// load resolves the {id} path parameter, writing the error response itself
// when the task cannot be returned.
func (h *TaskHandler) load(w http.ResponseWriter, r *http.Request) (*model.Task, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	task, err := h.tasks.GetByID(id)
	if err != nil {
		h.logger.Error("get task", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return nil, false
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return nil, false
	}
	return task, true
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	t, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Update(existing.ID, t)
	if err != nil {
		h.logger.Error("update task", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	h.broadcast("task", "updated", task.ID)
	writeJSON(w, http.StatusOK, task)
}

// Toggle flips the completed flag.
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.SetCompleted(existing.ID, !existing.Completed)
	if err != nil {
		h.logger.Error("toggle task", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	h.broadcast("task", "updated", task.ID)
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}

	var req struct {
		Priority string `json:"priority"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p := model.Priority(strings.ToLower(strings.TrimSpace(req.Priority)))
	if !p.Valid() {
		writeError(w, http.StatusBadRequest, "priority must be high, medium, low or empty")
		return
	}

	task, err := h.tasks.SetPriority(existing.ID, p)
	if err != nil {
		h.logger.Error("set task priority", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	h.broadcast("task", "updated", task.ID)
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := h.tasks.Delete(existing.ID); err != nil {
		h.logger.Error("delete task", "id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	h.broadcast("task", "deleted", existing.ID)
	w.WriteHeader(http.StatusNoContent)
}
