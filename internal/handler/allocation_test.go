package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cadence/internal/model"
)

func TestAllocationReport(t *testing.T) {
	env := newTestEnv(t)
	env.allocation.now = func() time.Time { return time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC) }
	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	for _, body := range []map[string]any{
		{"title": "Spec", "due_date": "2026-03-12", "estimated_hours": 12, "assignee_id": alice.ID},
		{"title": "Build", "due_date": "2026-03-11", "estimated_hours": 30, "assignee_id": bob.ID},
		{"title": "Test", "due_date": "2026-03-11", "estimated_hours": 30, "assignee_id": bob.ID},
		{"title": "Nobody", "due_date": "2026-03-11", "estimated_hours": 30},
	} {
		require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/tasks", body).Code)
	}

	report := func(path string) []model.ResourceAllocation {
		rec := env.do(t, "GET", path, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[[]model.ResourceAllocation](t, rec)
	}

	all := report("/api/allocation?start=2026-03-09&end=2026-03-11")
	require.Len(t, all, 2)
	assert.Equal(t, "Alice", all[0].UserName)
	require.Len(t, all[0].DailyAllocations, 3)
	assert.Equal(t, 12.0, all[0].TotalHours)
	assert.Equal(t, 0, all[0].OverallocatedDays)
	assert.Equal(t, 4.0, all[0].DailyAllocations[2].Hours)

	assert.Equal(t, "Bob", all[1].UserName)
	assert.Equal(t, 40.0, all[1].TotalHours)
	assert.Equal(t, 2, all[1].OverallocatedDays)
	assert.Equal(t, 4, all[1].OverallocatedTaskDays, "two stacked tasks on each of two days")
	assert.Equal(t, 250.0, all[1].DailyAllocations[0].Utilization)

	over := report("/api/allocation?start=2026-03-09&end=2026-03-11&overallocated=true")
	require.Len(t, over, 1)
	assert.Equal(t, bob.ID, over[0].UserID)

	members := report(fmt.Sprintf("/api/allocation?start=2026-03-09&end=2026-03-11&members=%d", alice.ID))
	require.Len(t, members, 1)
	assert.Equal(t, alice.ID, members[0].UserID)

	defaults := report("/api/allocation")
	require.Len(t, defaults, 2)
	require.Len(t, defaults[0].DailyAllocations, defaultAllocationDays)
	assert.Equal(t, "2026-03-09", defaults[0].DailyAllocations[0].Date.Format("2006-01-02"))
}

func TestAllocationBadParams(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/allocation?start=yesterday",
		"/api/allocation?start=2026-03-09&end=2026-03-01",
		"/api/allocation?members=1,two",
		"/api/allocation?overallocated=sure",
	} {
		assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", path, nil).Code, path)
	}
}

func TestAllocationWindowLimit(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "Alice")

	rec := env.do(t, "GET", "/api/allocation?start=1700-01-01&end=2300-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "window must not exceed 366 days", errorMessage(t, rec))

	rec = env.do(t, "GET", "/api/allocation?start=2028-01-01&end=2029-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "367 days")

	rec = env.do(t, "GET", "/api/allocation?start=2028-01-01&end=2028-12-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[[]model.ResourceAllocation](t, rec)
	require.Len(t, report, 1)
	assert.Len(t, report[0].DailyAllocations, maxAllocationDays)
}
