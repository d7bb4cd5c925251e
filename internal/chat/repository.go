package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrKeyNotFound  = errors.New("encryption key not found")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindExclusiveRoom looks up the direct room shared by exactly the two given
// usernames. The query is by participant-set membership, so the result is the
// same regardless of argument order.
func (r *Repository) FindExclusiveRoom(ctx context.Context, a, b string) (*Room, error) {
	room := &Room{}
	query := `
		SELECT r.id, r.name, r.is_group, r.salt, r.created_at
		FROM rooms r
		JOIN participants pa ON pa.room_id = r.id AND pa.username = $1
		JOIN participants pb ON pb.room_id = r.id AND pb.username = $2
		WHERE r.is_group = FALSE
		LIMIT 1
	`
	err := r.db.QueryRowContext(ctx, query, a, b).
		Scan(&room.ID, &room.Name, &room.IsGroup, &room.Salt, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// CreateRoom inserts a room and its participant rows in one transaction.
func (r *Repository) CreateRoom(ctx context.Context, name string, isGroup bool, salt string, participants []string) (*Room, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	room := &Room{Name: name, IsGroup: isGroup, Salt: salt}
	query := `INSERT INTO rooms (name, is_group, salt) VALUES ($1, $2, $3)
	          RETURNING id, created_at`
	if err := tx.QueryRowContext(ctx, query, name, isGroup, salt).Scan(&room.ID, &room.CreatedAt); err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	for _, username := range participants {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO participants (room_id, username) VALUES ($1, $2)", room.ID, username)
		if err != nil {
			return nil, fmt.Errorf("adding participant %s: %w", username, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return room, nil
}

func (r *Repository) GetParticipants(ctx context.Context, roomID int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT username FROM participants WHERE room_id = $1 ORDER BY username", roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		usernames = append(usernames, u)
	}
	return usernames, rows.Err()
}

func (r *Repository) AddParticipant(ctx context.Context, roomID int, username string) error {
	query := `INSERT INTO participants (room_id, username) VALUES ($1, $2)
	          ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, roomID, username)
	return err
}

func (r *Repository) DeleteParticipant(ctx context.Context, roomID int, username string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM participants WHERE room_id = $1 AND username = $2", roomID, username)
	return err
}

// InsertMessage appends to the per-room history log and returns the new
// message id.
func (r *Repository) InsertMessage(ctx context.Context, m *Message) (int, error) {
	var id int
	query := `INSERT INTO message_history (room_id, sender, content, encrypted)
	          VALUES ($1, $2, $3, $4) RETURNING message_id`
	err := r.db.QueryRowContext(ctx, query, m.RoomID, m.Sender, m.Content, m.Encrypted).Scan(&id)
	return id, err
}

// RetrieveMessages returns the full ordered log for a room, oldest first.
func (r *Repository) RetrieveMessages(ctx context.Context, roomID int) ([]Message, error) {
	query := `SELECT message_id, room_id, sender, content, encrypted, created_at
	          FROM message_history WHERE room_id = $1 ORDER BY message_id`
	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Sender, &m.Content, &m.Encrypted, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// InsertEncryptionKey stores client-wrapped key material per (username, room).
// Set once, updatable.
func (r *Repository) InsertEncryptionKey(ctx context.Context, username string, roomID int, key string) error {
	query := `INSERT INTO message_decryption_keys (username, room_id, encrypted_key)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (username, room_id) DO UPDATE SET encrypted_key = EXCLUDED.encrypted_key`
	_, err := r.db.ExecContext(ctx, query, username, roomID, key)
	return err
}

func (r *Repository) GetEncryptionKey(ctx context.Context, username string, roomID int) (string, error) {
	var key string
	query := "SELECT encrypted_key FROM message_decryption_keys WHERE username = $1 AND room_id = $2"
	err := r.db.QueryRowContext(ctx, query, username, roomID).Scan(&key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrKeyNotFound
		}
		return "", err
	}
	return key, nil
}
