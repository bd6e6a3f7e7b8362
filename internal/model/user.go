package model

import "time"

// User is a member of the team roster. Tasks are assigned to users and
// notifications are addressed to them.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Color        string    `json:"color"`
	HasFeedToken bool      `json:"has_feed_token"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
