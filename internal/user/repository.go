package user

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when no user row matches the requested username.
var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	query := `INSERT INTO users (username, password, salt, role, can_post, can_chat)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, u.Username, u.Password, u.Salt, u.Role, u.CanPost, u.CanChat)
	return err
}

func (r *Repository) GetUser(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := `SELECT username, password, salt, online_status, role, can_post, can_chat
	          FROM users WHERE username = $1`

	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&u.Username, &u.Password, &u.Salt, &u.Online, &u.Role, &u.CanPost, &u.CanChat)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) SetOnlineStatus(ctx context.Context, username string, online bool) error {
	query := "UPDATE users SET online_status = $1 WHERE username = $2"
	_, err := r.db.ExecContext(ctx, query, online, username)
	return err
}

func (r *Repository) GetOnlineStatus(ctx context.Context, username string) (bool, error) {
	var online bool
	query := "SELECT online_status FROM users WHERE username = $1"
	err := r.db.QueryRowContext(ctx, query, username).Scan(&online)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return online, nil
}

func (r *Repository) UpdateRole(ctx context.Context, username string, role Role) error {
	query := "UPDATE users SET role = $1 WHERE username = $2"
	res, err := r.db.ExecContext(ctx, query, role, username)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateCapabilities(ctx context.Context, username string, canPost, canChat bool) error {
	query := "UPDATE users SET can_post = $1, can_chat = $2 WHERE username = $3"
	res, err := r.db.ExecContext(ctx, query, canPost, canChat, username)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT username, online_status, role FROM users WHERE username ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Username, &u.Online, &u.Role); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
