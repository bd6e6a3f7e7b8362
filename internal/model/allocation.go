package model

import "time"

// DailyAllocation is the estimated load of one user on one calendar day.
type DailyAllocation struct {
	Date        time.Time `json:"date"`
	Hours       float64   `json:"hours"`
	Utilization float64   `json:"utilization"`
	Tasks       []int64   `json:"tasks"`
}

// ResourceAllocation aggregates a user's daily allocations over a window.
// It is derived on every request and never stored.
type ResourceAllocation struct {
	UserID             int64             `json:"user_id"`
	UserName           string            `json:"user_name"`
	DailyAllocations   []DailyAllocation `json:"daily_allocations"`
	TotalHours         float64           `json:"total_hours"`
	AverageUtilization float64           `json:"average_utilization"`
	// OverallocatedDays counts distinct days above the nominal workday.
	OverallocatedDays int `json:"overallocated_days"`
	// OverallocatedTaskDays counts every task contribution that left its day
	// above the nominal workday, so stacked tasks count more than once.
	OverallocatedTaskDays int `json:"overallocated_task_days"`
}
