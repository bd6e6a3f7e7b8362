package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cadence/internal/allocation"
	"github.com/dukerupert/cadence/internal/store"
)

const (
	// defaultAllocationDays is the window length when no end date is given.
	defaultAllocationDays = 14
	// maxAllocationDays bounds the window to one leap year.
	maxAllocationDays = 366
)

type AllocationHandler struct {
	tasks  *store.TaskStore
	users  *store.UserStore
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

func NewAllocationHandler(ts *store.TaskStore, us *store.UserStore, loc *time.Location, logger *slog.Logger) *AllocationHandler {
	return &AllocationHandler{tasks: ts, users: us, loc: loc, logger: logger, now: time.Now}
}

// Get handles GET /api/allocation?start=&end=&members=1,2&overallocated=true
//
// The window covers start to end inclusive and may span at most
// maxAllocationDays days. Each user reports two overallocation counts:
// overallocated_days is the number of distinct days above the workday, while
// overallocated_task_days counts every (task, day) pair whose contribution
// left that day above the workday, so two stacked tasks on one day count twice.
func (h *AllocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	today := h.now().In(h.loc)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, h.loc)
	if v := q.Get("start"); v != "" {
		t, err := parseFlexibleTime(v, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start")
			return
		}
		start = t
	}
	end := start.AddDate(0, 0, defaultAllocationDays-1)
	if v := q.Get("end"); v != "" {
		t, err := parseFlexibleTime(v, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end")
			return
		}
		end = t
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end must not be before start")
		return
	}
	if allocation.DayCount(start, end, h.loc) > maxAllocationDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("window must not exceed %d days", maxAllocationDays))
		return
	}

	f := allocation.Filter{StartDate: start, EndDate: end}
	if v := q.Get("members"); v != "" {
		ids, err := parseIDList(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "members must be a comma separated list of ids")
			return
		}
		f.TeamMembers = ids
	}
	over, err := queryBool(r, "overallocated")
	if err != nil {
		writeError(w, http.StatusBadRequest, "overallocated must be a boolean")
		return
	}
	f.ShowOverallocatedOnly = over != nil && *over

	tasks, err := h.tasks.List(store.TaskFilter{})
	if err != nil {
		h.logger.Error("list tasks for allocation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load tasks")
		return
	}
	users, err := h.users.List()
	if err != nil {
		h.logger.Error("list users for allocation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load users")
		return
	}

	writeJSON(w, http.StatusOK, allocation.Estimate(tasks, users, f, h.loc))
}
