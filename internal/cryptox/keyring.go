package cryptox

import (
	"errors"
	"sync"
)

// KeyState tracks how far a room has progressed through the key exchange.
type KeyState int

const (
	NoKey KeyState = iota
	KeyRequested
	KeyEstablished
)

func (s KeyState) String() string {
	switch s {
	case KeyRequested:
		return "KEY_REQUESTED"
	case KeyEstablished:
		return "KEY_ESTABLISHED"
	default:
		return "NO_KEY"
	}
}

// ErrKeyNotEstablished gates sends in an encrypted room before the exchange
// completes. Sends must fail closed, never degrade to plaintext.
var ErrKeyNotEstablished = errors.New("encryption key not established for this room")

// Keyring tracks, per room, whether end-to-end encryption is engaged and how
// far the key exchange has progressed. The server only observes exchange
// progress; the shared secret itself is derived client-side and never stored
// here.
type Keyring struct {
	mu      sync.Mutex
	engaged map[int]bool
	state   map[int]KeyState
}

func NewKeyring() *Keyring {
	return &Keyring{
		engaged: make(map[int]bool),
		state:   make(map[int]KeyState),
	}
}

// Engage switches a room into encrypted mode. Until the exchange reaches
// KeyEstablished, sends in the room are refused.
func (k *Keyring) Engage(roomID int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.engaged[roomID] = true
}

func (k *Keyring) Engaged(roomID int) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.engaged[roomID]
}

// MarkRequested records that one side asked for the counterpart's public key.
func (k *Keyring) MarkRequested(roomID int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state[roomID] == NoKey {
		k.state[roomID] = KeyRequested
	}
}

// MarkEstablished records that public keys have been published into the room.
func (k *Keyring) MarkEstablished(roomID int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state[roomID] = KeyEstablished
}

func (k *Keyring) State(roomID int) KeyState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state[roomID]
}

// AllowSend reports whether a send may proceed in the room. Plaintext rooms
// always may; engaged rooms only after the exchange completes.
func (k *Keyring) AllowSend(roomID int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.engaged[roomID] {
		return nil
	}
	if k.state[roomID] != KeyEstablished {
		return ErrKeyNotEstablished
	}
	return nil
}

// Forget drops all exchange state for a room.
func (k *Keyring) Forget(roomID int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.engaged, roomID)
	delete(k.state, roomID)
}
