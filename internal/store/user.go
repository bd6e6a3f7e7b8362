package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cadence/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, name, email, color, feed_token_hash != '', created_at, updated_at`

func (s *UserStore) Create(name, email, color string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (name, email, color) VALUES (?, ?, ?)`,
		name, email, color,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Color, &u.HasFeedToken, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) List() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Color, &u.HasFeedToken, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *UserStore) Update(id int64, name, email, color string) (*model.User, error) {
	_, err := s.db.Exec(
		`UPDATE users SET name = ?, email = ?, color = ? WHERE id = ?`,
		name, email, color, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// NameExists checks whether another user already has the name.
// excludeID lets an update keep its own name.
func (s *UserStore) NameExists(name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM users WHERE name = ? COLLATE NOCASE AND id != ?`,
		name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check user name: %w", err)
	}
	return count > 0, nil
}

// SetFeedTokenHash stores the bcrypt hash of the user's calendar feed token.
func (s *UserStore) SetFeedTokenHash(id int64, hash string) error {
	_, err := s.db.Exec(`UPDATE users SET feed_token_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("set feed token: %w", err)
	}
	return nil
}

// FeedTokenHash returns the stored hash, or "" when the user has none.
func (s *UserStore) FeedTokenHash(id int64) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT feed_token_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get feed token: %w", err)
	}
	return hash, nil
}
