package chat

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
)

// RoomDirectory tracks the single room each connected username is actively
// receiving fanout for. A user may hold Participant rows across many rooms in
// the store, but only one current room here at a time.
//
// Lookups scan the whole map: O(tracked users). Fine at classroom scale;
// callers must not assume anything sub-linear.
type RoomDirectory struct {
	mu      sync.RWMutex
	counter int
	current map[string]int
	salts   map[int]string
}

func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		current: make(map[string]int),
		salts:   make(map[int]string),
	}
}

// CreateRoom allocates a new direct room with a fresh per-room salt and sets
// both users' current room to it.
func (d *RoomDirectory) CreateRoom(sender, receiver string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counter++
	id := d.counter
	d.current[sender] = id
	d.current[receiver] = id
	d.salts[id] = newSalt()
	return id
}

// Track registers an externally allocated room id (one minted by the store)
// so that salts exist and locally allocated ids never collide with it.
func (d *RoomDirectory) Track(roomID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if roomID > d.counter {
		d.counter = roomID
	}
	if _, ok := d.salts[roomID]; !ok {
		d.salts[roomID] = newSalt()
	}
}

// JoinRoom sets the current room for username. A user already in another
// room is silently moved; there is no "already in a room" error.
func (d *RoomDirectory) JoinRoom(username string, roomID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current[username] = roomID
}

// LeaveRoom clears the current room for username. No-op if not present.
func (d *RoomDirectory) LeaveRoom(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.current, username)
}

// MembersOf returns the set of usernames whose current room is roomID,
// sorted for deterministic iteration.
func (d *RoomDirectory) MembersOf(roomID int) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var members []string
	for username, id := range d.current {
		if id == roomID {
			members = append(members, username)
		}
	}
	sort.Strings(members)
	return members
}

// CurrentRoomOf returns the room username is in, if any.
func (d *RoomDirectory) CurrentRoomOf(username string) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.current[username]
	return id, ok
}

// Salt returns the per-room salt, or "" for an untracked room.
func (d *RoomDirectory) Salt(roomID int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.salts[roomID]
}

func newSalt() string {
	raw := make([]byte, 16)
	rand.Read(raw)
	return hex.EncodeToString(raw)
}
