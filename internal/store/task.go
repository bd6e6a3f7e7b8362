package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// TaskFilter narrows List. Nil fields are not applied.
type TaskFilter struct {
	AssigneeID *int64
	Completed  *bool
}

const taskColumns = `id, title, description, due_date, start_date, estimated_hours, priority, assignee_id, completed, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(sc rowScanner) (model.Task, error) {
	var t model.Task
	var startDate sql.NullTime
	var estimate sql.NullFloat64
	var assignee sql.NullInt64
	var priority string
	var completedInt int

	err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.DueDate, &startDate, &estimate, &priority, &assignee, &completedInt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}

	t.Priority = model.Priority(priority)
	t.Completed = completedInt != 0
	if startDate.Valid {
		sd := startDate.Time
		t.StartDate = &sd
	}
	if estimate.Valid {
		t.EstimatedHours = &estimate.Float64
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.Int64
	}
	return t, nil
}

func taskArgs(t model.Task) (start sql.NullTime, estimate sql.NullFloat64, assignee sql.NullInt64) {
	if t.StartDate != nil {
		start = sql.NullTime{Time: t.StartDate.UTC(), Valid: true}
	}
	if t.EstimatedHours != nil {
		estimate = sql.NullFloat64{Float64: *t.EstimatedHours, Valid: true}
	}
	if t.AssigneeID != nil {
		assignee = sql.NullInt64{Int64: *t.AssigneeID, Valid: true}
	}
	return start, estimate, assignee
}

func (s *TaskStore) Create(t model.Task) (*model.Task, error) {
	start, estimate, assignee := taskArgs(t)
	var completedInt int
	if t.Completed {
		completedInt = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO tasks (title, description, due_date, start_date, estimated_hours, priority, assignee_id, completed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, t.DueDate.UTC(), start, estimate, string(t.Priority), assignee, completedInt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	t, err := scanTask(s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return &t, nil
}

func (s *TaskStore) List(f TaskFilter) ([]model.Task, error) {
	var where []string
	var args []any
	if f.AssigneeID != nil {
		where = append(where, "assignee_id = ?")
		args = append(args, *f.AssigneeID)
	}
	if f.Completed != nil {
		where = append(where, "completed = ?")
		if *f.Completed {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY due_date ASC, id ASC"

	return s.query(query, args...)
}

// ListIncomplete returns every task that is not completed, soonest due first.
func (s *TaskStore) ListIncomplete() ([]model.Task, error) {
	return s.query(`SELECT ` + taskColumns + ` FROM tasks WHERE completed = 0 ORDER BY due_date ASC, id ASC`)
}

// ListByDueRange returns tasks due in [start, end).
func (s *TaskStore) ListByDueRange(start, end time.Time) ([]model.Task, error) {
	return s.query(
		`SELECT `+taskColumns+` FROM tasks WHERE due_date >= ? AND due_date < ? ORDER BY due_date ASC, id ASC`,
		start.UTC(), end.UTC(),
	)
}

func (s *TaskStore) query(query string, args ...any) ([]model.Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Update(id int64, t model.Task) (*model.Task, error) {
	start, estimate, assignee := taskArgs(t)
	var completedInt int
	if t.Completed {
		completedInt = 1
	}

	_, err := s.db.Exec(
		`UPDATE tasks
		 SET title = ?, description = ?, due_date = ?, start_date = ?, estimated_hours = ?, priority = ?, assignee_id = ?, completed = ?
		 WHERE id = ?`,
		t.Title, t.Description, t.DueDate.UTC(), start, estimate, string(t.Priority), assignee, completedInt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	return s.GetByID(id)
}

// SetCompleted sets the status flag of a task.
func (s *TaskStore) SetCompleted(id int64, completed bool) (*model.Task, error) {
	var completedInt int
	if completed {
		completedInt = 1
	}
	_, err := s.db.Exec(`UPDATE tasks SET completed = ? WHERE id = ?`, completedInt, id)
	if err != nil {
		return nil, fmt.Errorf("set task completed: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) SetPriority(id int64, p model.Priority) (*model.Task, error) {
	_, err := s.db.Exec(`UPDATE tasks SET priority = ? WHERE id = ?`, string(p), id)
	if err != nil {
		return nil, fmt.Errorf("set task priority: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
