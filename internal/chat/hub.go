package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"campuschat/internal/cryptox"
	"campuschat/internal/user"

	"go.uber.org/zap"
)

// Store is the persistence surface the hub consumes. All methods are
// synchronous key-based lookups returning a single row or none.
type Store interface {
	FindExclusiveRoom(ctx context.Context, a, b string) (*Room, error)
	CreateRoom(ctx context.Context, name string, isGroup bool, salt string, participants []string) (*Room, error)
	GetParticipants(ctx context.Context, roomID int) ([]string, error)
	AddParticipant(ctx context.Context, roomID int, username string) error
	DeleteParticipant(ctx context.Context, roomID int, username string) error
	InsertMessage(ctx context.Context, m *Message) (int, error)
	RetrieveMessages(ctx context.Context, roomID int) ([]Message, error)
	InsertEncryptionKey(ctx context.Context, username string, roomID int, key string) error
	GetEncryptionKey(ctx context.Context, username string, roomID int) (string, error)
}

// UserDirectory resolves accounts and maintains the durable online flag.
type UserDirectory interface {
	GetUser(ctx context.Context, username string) (*user.User, error)
	SetOnlineStatus(ctx context.Context, username string, online bool) error
}

// fanoutFrame is what crosses the broker between instances.
type fanoutFrame struct {
	RoomID  int             `json:"room_id"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub routes realtime events. Membership lives in the presence registry and
// room directory, each serialized by its own lock; the clients map is touched
// only by the Run goroutine. History appends and key storage happen after the
// membership snapshot is taken, never under a registry lock.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	clients  map[*Client]bool
	presence *PresenceRegistry
	rooms    *RoomDirectory
	keyring  *cryptox.Keyring
	store    Store
	users    UserDirectory
	broker   Broker
	log      *zap.Logger
}

func NewHub(store Store, users UserDirectory, broker Broker, log *zap.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		presence:   NewPresenceRegistry(),
		rooms:      NewRoomDirectory(),
		keyring:    cryptox.NewKeyring(),
		store:      store,
		users:      users,
		broker:     broker,
		log:        log,
	}
}

// Presence exposes the registry for read-side collaborators.
func (h *Hub) Presence() *PresenceRegistry { return h.presence }

// Rooms exposes the room directory for read-side collaborators.
func (h *Hub) Rooms() *RoomDirectory { return h.rooms }

// Keyring exposes the per-room encryption state.
func (h *Hub) Keyring() *cryptox.Keyring { return h.keyring }

// Run owns the clients map and the fanout of broker frames. Call in its own
// goroutine.
func (h *Hub) Run(ctx context.Context) {
	frames := h.broker.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.clients[client] = true

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}

		case raw, ok := <-frames:
			if !ok {
				return
			}
			h.fanout(raw)
		}
	}
}

// fanout delivers one frame to every local member of its room. Clients whose
// send buffer is full are dropped, same as the write path would on a dead
// connection.
func (h *Hub) fanout(raw []byte) {
	var frame fanoutFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.log.Warn("malformed fanout frame", zap.Error(err))
		return
	}

	members := h.rooms.MembersOf(frame.RoomID)
	for _, username := range members {
		if frame.Exclude != "" && username == frame.Exclude {
			continue
		}
		client, ok := h.presence.Handle(username)
		if !ok || !h.clients[client] {
			continue
		}
		if !client.trySend(frame.Payload) {
			delete(h.clients, client)
			client.closeSend()
		}
	}
}

// deliverRoom publishes a server event to every current member of a room.
// exclude names a username to skip (sender-excluded mode); "" delivers
// inclusively.
func (h *Hub) deliverRoom(ctx context.Context, roomID int, exclude string, ev ServerEvent) {
	frame, err := json.Marshal(fanoutFrame{RoomID: roomID, Exclude: exclude, Payload: ev.encode()})
	if err != nil {
		h.log.Error("encoding fanout frame", zap.Error(err))
		return
	}
	if err := h.broker.Publish(ctx, frame); err != nil {
		h.log.Error("publishing fanout frame", zap.Int("room_id", roomID), zap.Error(err))
	}
}

// sendTo pushes an event to a single connection, dropping it if the buffer is
// full or the client has already been dropped. Replies and advisory notices go
// this way, not via the broker.
func (h *Hub) sendTo(c *Client, ev ServerEvent) {
	c.trySend(ev.encode())
}

// HandleEvent dispatches one client frame. Runs on the client's read
// goroutine; every failure is per-event and surfaces as a text reply.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, env *Envelope) {
	switch env.Event {
	case EventJoin:
		h.handleJoin(ctx, c, env.Receiver)
	case EventSend:
		h.handleSend(ctx, c, env)
	case EventLeave:
		h.handleLeave(ctx, c, env.RoomID)
	case EventAskReceiverPublicKey:
		h.keyring.Engage(env.RoomID)
		h.keyring.MarkRequested(env.RoomID)
		h.forwardKeyEvent(ctx, c, env)
	case EventSendReceiverPublicKey:
		h.keyring.MarkEstablished(env.RoomID)
		h.forwardKeyEvent(ctx, c, env)
	case EventSendReceiverSecretKey:
		h.forwardKeyEvent(ctx, c, env)
	case EventStoreEncryptedKey:
		h.handleStoreKey(ctx, c, env)
	case EventGetEncryptedKey:
		h.handleGetKey(ctx, c, env)
	case EventStoreEncryptedMessage:
		h.handleEncryptedSend(ctx, c, env)
	case EventGetEncryptedMessages:
		h.replayHistory(ctx, c, env.RoomID)
	case EventSendMAC:
		h.sendTo(c, Warning("Integrity protection (MAC) is not implemented."))
	case EventSendCombinedKey, EventRequestCombinedKey:
		h.sendTo(c, Warning("Server-mediated key exchange is not supported. Use the public key exchange."))
	}
}

// Connect announces presence and, when the client reconnects with an existing
// room id, rejoins that room and replays its history.
func (h *Hub) Connect(ctx context.Context, c *Client, roomID int) {
	h.presence.MarkOnline(c.Username, c)
	if err := h.users.SetOnlineStatus(ctx, c.Username, true); err != nil {
		h.log.Warn("setting online status", zap.String("username", c.Username), zap.Error(err))
	}

	if roomID == 0 {
		return
	}

	h.rooms.Track(roomID)
	h.rooms.JoinRoom(c.Username, roomID)
	h.deliverRoom(ctx, roomID, "", Incoming(fmt.Sprintf("%s has connected", c.Username), SeverityInfo))
	h.sendTo(c, Connected(roomID))
	h.notifyIfUnreachable(c, roomID)
	h.replayHistory(ctx, c, roomID)
}

// Disconnect performs best-effort cleanup. A dropped disconnect leaves stale
// presence behind; the next connect or join corrects it.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	if roomID, ok := h.rooms.CurrentRoomOf(c.Username); ok {
		if current, online := h.presence.Handle(c.Username); online && current == c {
			h.deliverRoom(ctx, roomID, c.Username,
				Incoming(fmt.Sprintf("%s has left the room.", c.Username), SeverityAlert))
			h.rooms.LeaveRoom(c.Username)
		}
	}

	h.presence.MarkOffline(c.Username, c)
	if err := h.users.SetOnlineStatus(ctx, c.Username, false); err != nil {
		h.log.Warn("clearing online status", zap.String("username", c.Username), zap.Error(err))
	}

	h.Unregister <- c
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, receiver string) {
	if _, err := h.users.GetUser(ctx, receiver); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			h.sendTo(c, Warning("Unknown receiver!"))
		} else {
			h.log.Error("looking up receiver", zap.Error(err))
			h.sendTo(c, Warning("Could not open the room. Try again later!"))
		}
		return
	}
	if !c.CanChat {
		h.sendTo(c, Warning("Chatting is disabled for this account."))
		return
	}

	// If the receiver is already waiting inside a room, join them there.
	if roomID, ok := h.rooms.CurrentRoomOf(receiver); ok {
		h.rooms.JoinRoom(c.Username, roomID)
		if err := h.store.AddParticipant(ctx, roomID, c.Username); err != nil {
			h.log.Warn("recording participant", zap.Int("room_id", roomID), zap.Error(err))
		}

		h.deliverRoom(ctx, roomID, c.Username,
			Incoming(fmt.Sprintf("%s has joined the room.", c.Username), SeverityInfo))
		h.sendTo(c, Incoming(
			fmt.Sprintf("%s has joined the room. Now talking to %s.", c.Username, receiver), SeverityInfo))
		h.sendTo(c, Connected(roomID))
		h.replayHistory(ctx, c, roomID)
		return
	}

	// Otherwise find or create the persistent direct room for this pair.
	// The lookup is by participant set, so argument order does not matter.
	room, err := h.store.FindExclusiveRoom(ctx, c.Username, receiver)
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			h.log.Error("finding direct room", zap.Error(err))
			h.sendTo(c, Warning("Could not open the room. Try again later!"))
			return
		}
		name := c.Username + receiver // display only, never a lookup key
		room, err = h.store.CreateRoom(ctx, name, false, newSalt(), []string{c.Username, receiver})
		if err != nil {
			h.log.Error("creating direct room", zap.Error(err))
			h.sendTo(c, Warning("Could not open the room. Try again later!"))
			return
		}
	}

	h.rooms.Track(room.ID)
	h.rooms.JoinRoom(c.Username, room.ID)
	h.rooms.JoinRoom(receiver, room.ID)

	h.deliverRoom(ctx, room.ID, "",
		Incoming(fmt.Sprintf("%s has joined the room. Now talking to %s.", c.Username, receiver), SeverityInfo))
	h.sendTo(c, Connected(room.ID))
	if !h.presence.IsOnline(receiver) {
		h.sendTo(c, Incoming(
			fmt.Sprintf("%s is not online. Messages will not be received!", receiver), SeverityInfo))
	}
	h.replayHistory(ctx, c, room.ID)
}

func (h *Hub) handleSend(ctx context.Context, c *Client, env *Envelope) {
	roomID := env.RoomID
	if roomID == 0 {
		current, ok := h.rooms.CurrentRoomOf(c.Username)
		if !ok {
			h.sendTo(c, Warning("You are not in a room!"))
			return
		}
		roomID = current
	}

	if !c.CanChat {
		h.sendTo(c, Warning("Chatting is disabled for this account."))
		return
	}

	// Fail closed: once a room is engaged for encryption, plaintext sends
	// are refused until the key exchange completes.
	if err := h.keyring.AllowSend(roomID); err != nil {
		h.sendTo(c, Warning("Encryption key not established. Message not sent!"))
		return
	}

	h.deliverRoom(ctx, roomID, "",
		ServerEvent{Event: ServerIncoming, Text: fmt.Sprintf("%s: %s", c.Username, env.Message), Sender: c.Username})

	// Membership snapshot is already released; the history append may block
	// on I/O without holding anything up.
	if _, err := h.store.InsertMessage(ctx, &Message{
		RoomID:  roomID,
		Sender:  c.Username,
		Content: env.Message,
	}); err != nil {
		h.log.Error("appending message history", zap.Int("room_id", roomID), zap.Error(err))
	}

	h.notifyIfUnreachable(c, roomID)
}

func (h *Hub) handleLeave(ctx context.Context, c *Client, roomID int) {
	if roomID == 0 {
		if current, ok := h.rooms.CurrentRoomOf(c.Username); ok {
			roomID = current
		}
	}
	left := Incoming(fmt.Sprintf("%s has left the room.", c.Username), SeverityAlert)
	h.sendTo(c, left)
	h.deliverRoom(ctx, roomID, c.Username, left)

	h.rooms.LeaveRoom(c.Username)
	if err := h.store.DeleteParticipant(ctx, roomID, c.Username); err != nil {
		h.log.Warn("deleting participant", zap.Int("room_id", roomID), zap.Error(err))
	}
}

// forwardKeyEvent relays key-exchange material to the rest of the room. The
// server never derives the shared secret; it only moves opaque material
// between the members.
func (h *Hub) forwardKeyEvent(ctx context.Context, c *Client, env *Envelope) {
	h.deliverRoom(ctx, env.RoomID, c.Username, ServerEvent{
		Event:  string(env.Event),
		RoomID: env.RoomID,
		Sender: c.Username,
		Key:    env.Key,
	})
}

func (h *Hub) handleStoreKey(ctx context.Context, c *Client, env *Envelope) {
	if err := h.store.InsertEncryptionKey(ctx, c.Username, env.RoomID, env.Key); err != nil {
		h.log.Error("storing encryption key", zap.Int("room_id", env.RoomID), zap.Error(err))
		h.sendTo(c, Warning("Could not store the key!"))
	}
}

func (h *Hub) handleGetKey(ctx context.Context, c *Client, env *Envelope) {
	key, err := h.store.GetEncryptionKey(ctx, c.Username, env.RoomID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			h.sendTo(c, Warning("No key stored for this room!"))
		} else {
			h.log.Error("loading encryption key", zap.Int("room_id", env.RoomID), zap.Error(err))
			h.sendTo(c, Warning("Could not load the key!"))
		}
		return
	}
	h.sendTo(c, ServerEvent{Event: string(EventSendReceiverSecretKey), RoomID: env.RoomID, Key: key})
}

// handleEncryptedSend persists and fans out ciphertext. The envelope message
// is base64 IV-prefixed AES-CBC output produced client-side; it is forwarded
// under its own event kind so ciphertext never rides the plaintext path.
func (h *Hub) handleEncryptedSend(ctx context.Context, c *Client, env *Envelope) {
	if h.keyring.State(env.RoomID) != cryptox.KeyEstablished {
		h.sendTo(c, Warning("Encryption key not established. Message not sent!"))
		return
	}

	h.deliverRoom(ctx, env.RoomID, c.Username, ServerEvent{
		Event:   string(EventStoreEncryptedMessage),
		RoomID:  env.RoomID,
		Sender:  c.Username,
		Message: env.Message,
	})

	if _, err := h.store.InsertMessage(ctx, &Message{
		RoomID:    env.RoomID,
		Sender:    c.Username,
		Content:   env.Message,
		Encrypted: true,
	}); err != nil {
		h.log.Error("appending encrypted history", zap.Int("room_id", env.RoomID), zap.Error(err))
	}

	h.notifyIfUnreachable(c, env.RoomID)
}

func (h *Hub) replayHistory(ctx context.Context, c *Client, roomID int) {
	msgs, err := h.store.RetrieveMessages(ctx, roomID)
	if err != nil {
		h.log.Error("loading message history", zap.Int("room_id", roomID), zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}
	h.sendTo(c, ServerEvent{Event: ServerMessageHistory, RoomID: roomID, Messages: msgs})
}

// notifyIfUnreachable emits the advisory "receiver unreachable" notice to the
// sender only. It never blocks the send; the transport is best-effort.
func (h *Hub) notifyIfUnreachable(c *Client, roomID int) {
	members := h.rooms.MembersOf(roomID)
	othersOnline := 0
	for _, username := range members {
		if username != c.Username && h.presence.IsOnline(username) {
			othersOnline++
		}
	}
	if len(members) == 1 || othersOnline == 0 {
		h.sendTo(c, Incoming("Receiver is not online. Messages will not be received!", SeverityInfo))
	}
}
