package friend

import (
	"context"
	"database/sql"
	"errors"
)

var ErrRequestNotFound = errors.New("friend request not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PendingRequestExists reports whether an unaccepted request exists between
// the two usernames in either direction.
func (r *Repository) PendingRequestExists(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (
	            SELECT 1 FROM friend_requests
	            WHERE accepted = FALSE
	              AND ((sender = $1 AND recipient = $2) OR (sender = $2 AND recipient = $1))
	          )`
	err := r.db.QueryRowContext(ctx, query, a, b).Scan(&exists)
	return exists, err
}

func (r *Repository) CreateRequest(ctx context.Context, sender, recipient string) (int, error) {
	var id int
	query := "INSERT INTO friend_requests (sender, recipient) VALUES ($1, $2) RETURNING id"
	err := r.db.QueryRowContext(ctx, query, sender, recipient).Scan(&id)
	return id, err
}

func (r *Repository) GetRequest(ctx context.Context, id int) (*FriendRequest, error) {
	req := &FriendRequest{}
	query := "SELECT id, sender, recipient, accepted FROM friend_requests WHERE id = $1"
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&req.ID, &req.Sender, &req.Recipient, &req.Accepted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *Repository) DeleteRequest(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM friend_requests WHERE id = $1", id)
	return err
}

func (r *Repository) ListIncomingRequests(ctx context.Context, username string) ([]FriendRequest, error) {
	query := `SELECT id, sender, recipient, accepted FROM friend_requests
	          WHERE recipient = $1 AND accepted = FALSE ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []FriendRequest
	for rows.Next() {
		var req FriendRequest
		if err := rows.Scan(&req.ID, &req.Sender, &req.Recipient, &req.Accepted); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *Repository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS (SELECT 1 FROM friends WHERE user_id = $1 AND friend_id = $2)"
	err := r.db.QueryRowContext(ctx, query, a, b).Scan(&exists)
	return exists, err
}

// AddFriendEdges materializes the undirected relation as two directed rows.
func (r *Repository) AddFriendEdges(ctx context.Context, a, b string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT INTO friends (user_id, friend_id) VALUES ($1, $2)", a, b); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO friends (user_id, friend_id) VALUES ($1, $2)", b, a); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveFriendEdges deletes both directions of the relation.
func (r *Repository) RemoveFriendEdges(ctx context.Context, a, b string) error {
	query := `DELETE FROM friends
	          WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`
	_, err := r.db.ExecContext(ctx, query, a, b)
	return err
}

func (r *Repository) ListFriends(ctx context.Context, username string) ([]Friend, error) {
	query := `SELECT u.username, u.online_status
	          FROM friends f JOIN users u ON f.friend_id = u.username
	          WHERE f.user_id = $1 ORDER BY u.username`
	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []Friend
	for rows.Next() {
		var f Friend
		if err := rows.Scan(&f.Username, &f.Online); err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}
