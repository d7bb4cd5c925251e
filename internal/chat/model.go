package chat

import "time"

// Room is a persistent fanout group, either a 2-party direct chat or a named
// group chat.
type Room struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	Salt      string    `json:"salt"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one row of the append-only per-room history. Content holds
// plaintext, or base64 IV-prefixed ciphertext when Encrypted is set.
type Message struct {
	ID        int       `json:"message_id"`
	RoomID    int       `json:"room_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Encrypted bool      `json:"encrypted"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomKey is client-wrapped key material persisted per (username, room).
// The server cannot decrypt it.
type RoomKey struct {
	Username     string `json:"username"`
	RoomID       int    `json:"room_id"`
	EncryptedKey string `json:"encrypted_key"`
}

// StartConversationRequest is the REST payload for find-or-create of a
// direct room.
type StartConversationRequest struct {
	Receiver string `json:"receiver"`
}

// CreateGroupRequest is the REST payload for creating a named group room.
type CreateGroupRequest struct {
	Name string `json:"name"`
}
