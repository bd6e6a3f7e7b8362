package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cadence/internal/model"
)

func TestTaskCreateAndGet(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")

	rec := env.do(t, "POST", "/api/tasks", map[string]any{
		"title":           "  Write report  ",
		"due_date":        "2026-03-10",
		"start_date":      "2026-03-06",
		"estimated_hours": 12,
		"priority":        "HIGH",
		"assignee_id":     alice.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Task](t, rec)
	assert.Equal(t, "Write report", created.Title)
	assert.Equal(t, model.PriorityHigh, created.Priority)
	require.NotNil(t, created.AssigneeID)
	assert.Equal(t, alice.ID, *created.AssigneeID)
	require.NotNil(t, created.EstimatedHours)
	assert.Equal(t, 12.0, *created.EstimatedHours)

	rec = env.do(t, "GET", fmt.Sprintf("/api/tasks/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.Task](t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "2026-03-10", got.DueDate.UTC().Format("2006-01-02"))
}

func TestTaskCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"missing title", map[string]any{"due_date": "2026-03-10"}, "title is required"},
		{"bad due date", map[string]any{"title": "x", "due_date": "soon"}, "due_date must be RFC3339 or YYYY-MM-DD format"},
		{"start after due", map[string]any{"title": "x", "due_date": "2026-03-10", "start_date": "2026-03-11"}, "start_date must not be after due_date"},
		{"negative estimate", map[string]any{"title": "x", "due_date": "2026-03-10", "estimated_hours": -1}, "estimated_hours must not be negative"},
		{"bad priority", map[string]any{"title": "x", "due_date": "2026-03-10", "priority": "urgent"}, "priority must be high, medium, low or empty"},
		{"unknown assignee", map[string]any{"title": "x", "due_date": "2026-03-10", "assignee_id": 99}, "assignee not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/tasks", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorMessage(t, rec))
		})
	}

	rec := env.do(t, "POST", "/api/tasks", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON", errorMessage(t, rec))
}

func TestTaskListFilters(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	for _, body := range []map[string]any{
		{"title": "A1", "due_date": "2026-03-12", "assignee_id": alice.ID},
		{"title": "A2", "due_date": "2026-03-10", "assignee_id": alice.ID, "completed": true},
		{"title": "B1", "due_date": "2026-03-11", "assignee_id": bob.ID},
	} {
		require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/tasks", body).Code)
	}

	titles := func(path string) []string {
		rec := env.do(t, "GET", path, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out []string
		for _, task := range decode[[]model.Task](t, rec) {
			out = append(out, task.Title)
		}
		return out
	}

	assert.Equal(t, []string{"A2", "B1", "A1"}, titles("/api/tasks"))
	assert.Equal(t, []string{"A2", "A1"}, titles(fmt.Sprintf("/api/tasks?assignee=%d", alice.ID)))
	assert.Equal(t, []string{"B1", "A1"}, titles("/api/tasks?completed=false"))
	assert.Equal(t, []string{"A1"}, titles(fmt.Sprintf("/api/tasks?assignee=%d&completed=false", alice.ID)))

	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/tasks?assignee=x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/tasks?completed=maybe", nil).Code)
}

func TestTaskListEmpty(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/api/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestTaskUpdateToggleAndPriority(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/api/tasks", map[string]any{"title": "Draft", "due_date": "2026-03-10"})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[model.Task](t, rec)
	path := fmt.Sprintf("/api/tasks/%d", task.ID)

	rec = env.do(t, "PUT", path, map[string]any{"title": "Final", "due_date": "2026-03-12", "priority": "low"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Task](t, rec)
	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, model.PriorityLow, updated.Priority)

	rec = env.do(t, "POST", path+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Task](t, rec).Completed)

	rec = env.do(t, "POST", path+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[model.Task](t, rec).Completed)

	rec = env.do(t, "PUT", path+"/priority", map[string]string{"priority": "medium"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.PriorityMedium, decode[model.Task](t, rec).Priority)

	rec = env.do(t, "PUT", path+"/priority", map[string]string{"priority": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.PriorityNone, decode[model.Task](t, rec).Priority)

	rec = env.do(t, "PUT", path+"/priority", map[string]string{"priority": "critical"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskNotFoundAndDelete(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/tasks/42", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/tasks/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "POST", "/api/tasks/42/toggle", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "DELETE", "/api/tasks/42", nil).Code)

	rec := env.do(t, "POST", "/api/tasks", map[string]any{"title": "Temp", "due_date": "2026-03-10"})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[model.Task](t, rec)

	path := fmt.Sprintf("/api/tasks/%d", task.ID)
	assert.Equal(t, http.StatusNoContent, env.do(t, "DELETE", path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", path, nil).Code)
}
