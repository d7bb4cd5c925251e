package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"campuschat/internal/cryptox"
	"campuschat/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore is an in-memory Store for hub tests.
type fakeStore struct {
	mu           sync.Mutex
	nextRoomID   int
	rooms        map[int]*Room
	participants map[int]map[string]bool
	messages     []Message
	keys         map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:        make(map[int]*Room),
		participants: make(map[int]map[string]bool),
		keys:         make(map[string]string),
	}
}

func (s *fakeStore) FindExclusiveRoom(_ context.Context, a, b string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, room := range s.rooms {
		if room.IsGroup {
			continue
		}
		if s.participants[id][a] && s.participants[id][b] {
			return room, nil
		}
	}
	return nil, ErrRoomNotFound
}

func (s *fakeStore) CreateRoom(_ context.Context, name string, isGroup bool, salt string, participants []string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRoomID++
	room := &Room{ID: s.nextRoomID, Name: name, IsGroup: isGroup, Salt: salt}
	s.rooms[room.ID] = room
	s.participants[room.ID] = make(map[string]bool)
	for _, username := range participants {
		s.participants[room.ID][username] = true
	}
	return room, nil
}

func (s *fakeStore) GetParticipants(_ context.Context, roomID int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for username := range s.participants[roomID] {
		out = append(out, username)
	}
	return out, nil
}

func (s *fakeStore) AddParticipant(_ context.Context, roomID int, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.participants[roomID] == nil {
		s.participants[roomID] = make(map[string]bool)
	}
	s.participants[roomID][username] = true
	return nil
}

func (s *fakeStore) DeleteParticipant(_ context.Context, roomID int, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants[roomID], username)
	return nil
}

func (s *fakeStore) InsertMessage(_ context.Context, m *Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = len(s.messages) + 1
	s.messages = append(s.messages, *m)
	return m.ID, nil
}

func (s *fakeStore) RetrieveMessages(_ context.Context, roomID int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertEncryptionKey(_ context.Context, username string, roomID int, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[fmt.Sprintf("%s:%d", username, roomID)] = key
	return nil
}

func (s *fakeStore) GetEncryptionKey(_ context.Context, username string, roomID int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[fmt.Sprintf("%s:%d", username, roomID)]
	if !ok {
		return "", ErrKeyNotFound
	}
	return key, nil
}

func (s *fakeStore) storedMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// fakeUsers is an in-memory UserDirectory.
type fakeUsers struct {
	mu     sync.Mutex
	known  map[string]bool
	online map[string]bool
}

func newFakeUsers(usernames ...string) *fakeUsers {
	known := make(map[string]bool)
	for _, u := range usernames {
		known[u] = true
	}
	return &fakeUsers{known: known, online: make(map[string]bool)}
}

func (f *fakeUsers) GetUser(_ context.Context, username string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[username] {
		return nil, user.ErrNotFound
	}
	return &user.User{Username: username, Role: user.RoleStudent, CanPost: true, CanChat: true}, nil
}

func (f *fakeUsers) SetOnlineStatus(_ context.Context, username string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[username] = online
	return nil
}

func (f *fakeUsers) isOnline(username string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[username]
}

func newTestHub(t *testing.T, usernames ...string) (*Hub, *fakeStore, *fakeUsers) {
	t.Helper()
	store := newFakeStore()
	users := newFakeUsers(usernames...)
	hub := NewHub(store, users, NewLoopbackBroker(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return hub, store, users
}

// connect registers a client with the hub and announces presence, the same
// sequence ServeWs performs.
func connect(t *testing.T, hub *Hub, username string, roomID int) *Client {
	t.Helper()
	c := &Client{
		Hub:      hub,
		Send:     make(chan []byte, 64),
		ID:       username + "-conn",
		Username: username,
		CanChat:  true,
	}
	hub.Register <- c
	hub.Connect(context.Background(), c, roomID)
	return c
}

// nextEvent blocks for the client's next server frame.
func nextEvent(t *testing.T, c *Client) ServerEvent {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var ev ServerEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server event")
		return ServerEvent{}
	}
}

// awaitEvents reads frames until every predicate has matched one. Direct
// replies and broker-delivered frames arrive in no guaranteed relative order,
// so assertions wait for sets, not sequences. Returns everything read.
func awaitEvents(t *testing.T, c *Client, preds ...func(ServerEvent) bool) []ServerEvent {
	t.Helper()
	matched := make([]bool, len(preds))
	remaining := len(preds)
	var seen []ServerEvent
	deadline := time.After(2 * time.Second)
	for remaining > 0 {
		select {
		case raw, ok := <-c.Send:
			require.True(t, ok, "send channel closed")
			var ev ServerEvent
			require.NoError(t, json.Unmarshal(raw, &ev))
			seen = append(seen, ev)
			for i, pred := range preds {
				if !matched[i] && pred(ev) {
					matched[i] = true
					remaining--
					break
				}
			}
		case <-deadline:
			t.Fatalf("timed out; events seen so far: %+v", seen)
		}
	}
	return seen
}

func isEvent(name string) func(ServerEvent) bool {
	return func(ev ServerEvent) bool { return ev.Event == name }
}

func hasText(text string) func(ServerEvent) bool {
	return func(ev ServerEvent) bool { return ev.Text == text }
}

func findEvent(events []ServerEvent, pred func(ServerEvent) bool) ServerEvent {
	for _, ev := range events {
		if pred(ev) {
			return ev
		}
	}
	return ServerEvent{}
}

// collectFor gathers every event delivered within the window.
func collectFor(c *Client, window time.Duration) []ServerEvent {
	var out []ServerEvent
	deadline := time.After(window)
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var ev ServerEvent
			if json.Unmarshal(raw, &ev) == nil {
				out = append(out, ev)
			}
		case <-deadline:
			return out
		}
	}
}

// joinDirect drives the join handshake between two connected clients and
// waits for every frame it produces, so later assertions start from a quiet
// channel.
func joinDirect(t *testing.T, hub *Hub, sender, receiver *Client) int {
	t.Helper()
	hub.HandleEvent(context.Background(), sender, &Envelope{Event: EventJoin, Receiver: receiver.Username})

	notice := fmt.Sprintf("%s has joined the room. Now talking to %s.", sender.Username, receiver.Username)
	events := awaitEvents(t, sender, isEvent(ServerConnected), hasText(notice))
	awaitEvents(t, receiver, hasText(notice))

	roomID := findEvent(events, isEvent(ServerConnected)).RoomID
	require.NotZero(t, roomID)
	return roomID
}

func TestDeliverRoom_SenderExcludedAndInclusiveModes(t *testing.T) {
	hub, _, _ := newTestHub(t, "alice", "bob")
	alice := connect(t, hub, "alice", 0)
	bob := connect(t, hub, "bob", 0)

	hub.Rooms().Track(1)
	hub.Rooms().JoinRoom("alice", 1)
	hub.Rooms().JoinRoom("bob", 1)

	// Sender-excluded: alice never sees her own frame.
	hub.deliverRoom(context.Background(), 1, "alice", Incoming("excluded", SeverityInfo))
	ev := nextEvent(t, bob)
	assert.Equal(t, "excluded", ev.Text)
	assert.Empty(t, collectFor(alice, 100*time.Millisecond))

	// Inclusive: everyone sees it, alice included.
	hub.deliverRoom(context.Background(), 1, "", Incoming("inclusive", SeverityInfo))
	assert.Equal(t, "inclusive", nextEvent(t, alice).Text)
	assert.Equal(t, "inclusive", nextEvent(t, bob).Text)
}

func TestJoinAndSend_Scenario(t *testing.T) {
	hub, store, users := newTestHub(t, "alice", "bob")
	alice := connect(t, hub, "alice", 0)
	bob := connect(t, hub, "bob", 0)

	assert.True(t, users.isOnline("alice"))
	assert.True(t, users.isOnline("bob"))

	// Alice joins with bob as receiver: both receive the join notice.
	roomID := joinDirect(t, hub, alice, bob)

	// Alice sends "hi": bob's handle receives "alice: hi", and inclusive
	// delivery means alice hears her own message too.
	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventSend, RoomID: roomID, Message: "hi"})
	awaitEvents(t, bob, hasText("alice: hi"))
	awaitEvents(t, alice, hasText("alice: hi"))

	// History for the room contains exactly one entry equal to "hi" at position 0.
	msgs := store.storedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, roomID, msgs[0].RoomID)
	assert.Equal(t, "alice", msgs[0].Sender)
	assert.False(t, msgs[0].Encrypted)
}

func TestDirectRoomLookupIsSymmetric(t *testing.T) {
	hub, store, _ := newTestHub(t, "alice", "bob")
	alice := connect(t, hub, "alice", 0)
	bob := connect(t, hub, "bob", 0)

	roomID := joinDirect(t, hub, alice, bob)

	// Looking up the pair in the other order resolves to the same room.
	room, err := store.FindExclusiveRoom(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, roomID, room.ID)
}

func TestJoin_UnknownReceiver(t *testing.T) {
	hub, _, _ := newTestHub(t, "alice")
	alice := connect(t, hub, "alice", 0)

	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventJoin, Receiver: "ghost"})

	ev := nextEvent(t, alice)
	assert.Equal(t, ServerWarnings, ev.Event)
	assert.Equal(t, "Unknown receiver!", ev.Text)
}

func TestSend_UnreachableNoticeWhenCounterpartOffline(t *testing.T) {
	hub, _, _ := newTestHub(t, "alice", "bob")
	alice := connect(t, hub, "alice", 0)

	// bob exists but never connects. The join itself already warns once.
	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventJoin, Receiver: "bob"})
	events := awaitEvents(t, alice,
		isEvent(ServerConnected),
		hasText("bob is not online. Messages will not be received!"),
		hasText("alice has joined the room. Now talking to bob."),
	)
	roomID := findEvent(events, isEvent(ServerConnected)).RoomID

	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventSend, RoomID: roomID, Message: "hello?"})

	got := collectFor(alice, 300*time.Millisecond)
	notices := 0
	for _, ev := range got {
		if ev.Text == "Receiver is not online. Messages will not be received!" {
			notices++
		}
	}
	assert.Equal(t, 1, notices, "exactly one unreachable notice per send")
}

func TestReconnect_RejoinsRoomAndReplaysHistory(t *testing.T) {
	hub, store, _ := newTestHub(t, "alice")
	store.InsertMessage(context.Background(), &Message{RoomID: 5, Sender: "alice", Content: "earlier"})

	alice := connect(t, hub, "alice", 5)

	got, ok := hub.Rooms().CurrentRoomOf("alice")
	require.True(t, ok)
	assert.Equal(t, 5, got)

	events := awaitEvents(t, alice,
		func(ev ServerEvent) bool { return ev.Event == ServerConnected && ev.RoomID == 5 },
		isEvent(ServerMessageHistory),
		// Alone in the room: the advisory notice fires.
		hasText("Receiver is not online. Messages will not be received!"),
		hasText("alice has connected"),
	)

	history := findEvent(events, isEvent(ServerMessageHistory))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "earlier", history.Messages[0].Content)
}

func TestLeave_RemovesMembershipAndNotifies(t *testing.T) {
	hub, store, _ := newTestHub(t, "alice", "bob")
	alice := connect(t, hub, "alice", 0)
	bob := connect(t, hub, "bob", 0)
	roomID := joinDirect(t, hub, alice, bob)

	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventLeave, RoomID: roomID})

	events := awaitEvents(t, bob, hasText("alice has left the room."))
	assert.Equal(t, SeverityAlert, findEvent(events, hasText("alice has left the room.")).Severity)

	_, ok := hub.Rooms().CurrentRoomOf("alice")
	assert.False(t, ok)

	participants, _ := store.GetParticipants(context.Background(), roomID)
	assert.NotContains(t, participants, "alice")
}

func TestDisconnect_BestEffortCleanup(t *testing.T) {
	hub, _, users := newTestHub(t, "alice", "bob")
	alice := connect(t, hub, "alice", 0)
	bob := connect(t, hub, "bob", 0)
	joinDirect(t, hub, alice, bob)

	hub.Disconnect(context.Background(), alice)

	awaitEvents(t, bob, hasText("alice has left the room."))

	assert.False(t, hub.Presence().IsOnline("alice"))
	assert.False(t, users.isOnline("alice"))
	_, ok := hub.Rooms().CurrentRoomOf("alice")
	assert.False(t, ok)
}

func TestSlowClientDrop_LaterEventsAreDiscarded(t *testing.T) {
	hub, _, _ := newTestHub(t, "alice", "bob")

	// alice gets a 1-slot buffer so a second frame overflows it.
	alice := &Client{Hub: hub, Send: make(chan []byte, 1), ID: "alice-conn", Username: "alice", CanChat: true}
	hub.Register <- alice
	hub.Connect(context.Background(), alice, 0)
	bob := connect(t, hub, "bob", 0)

	hub.Rooms().Track(1)
	hub.Rooms().JoinRoom("alice", 1)
	hub.Rooms().JoinRoom("bob", 1)

	// The second frame finds alice's buffer full and drops her. Waiting for
	// bob to see it guarantees the hub has processed both frames.
	hub.deliverRoom(context.Background(), 1, "", Incoming("one", SeverityInfo))
	hub.deliverRoom(context.Background(), 1, "", Incoming("two", SeverityInfo))
	awaitEvents(t, bob, hasText("two"))

	// Her read goroutine has not noticed yet and handles one more event. The
	// reply must be discarded, never sent on the closed channel.
	assert.NotPanics(t, func() {
		hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventSendMAC, RoomID: 1})
	})
}

func TestEncryptedRoom_SendFailsClosedBeforeKeyEstablished(t *testing.T) {
	hub, store, _ := newTestHub(t, "alice", "bob")
	alice := connect(t, hub, "alice", 0)
	bob := connect(t, hub, "bob", 0)
	roomID := joinDirect(t, hub, alice, bob)

	// Alice engages encryption by asking for bob's public key. Bob is
	// forwarded the request; alice, as sender, is not.
	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventAskReceiverPublicKey, RoomID: roomID, Key: "alice-pub"})
	assert.Equal(t, cryptox.KeyRequested, hub.Keyring().State(roomID))

	events := awaitEvents(t, bob, isEvent(string(EventAskReceiverPublicKey)))
	fwd := findEvent(events, isEvent(string(EventAskReceiverPublicKey)))
	assert.Equal(t, "alice-pub", fwd.Key)
	assert.Equal(t, "alice", fwd.Sender)

	// A plaintext send now fails closed: warning to the sender, nothing
	// delivered, nothing appended to history.
	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventSend, RoomID: roomID, Message: "too early"})
	warning := nextEvent(t, alice)
	assert.Equal(t, ServerWarnings, warning.Event)
	assert.Contains(t, warning.Text, "not established")
	assert.Empty(t, collectFor(bob, 100*time.Millisecond))
	assert.Empty(t, store.storedMessages())

	// Bob publishes his public key; the exchange completes.
	hub.HandleEvent(context.Background(), bob, &Envelope{Event: EventSendReceiverPublicKey, RoomID: roomID, Key: "bob-pub"})
	assert.Equal(t, cryptox.KeyEstablished, hub.Keyring().State(roomID))
	awaitEvents(t, alice, isEvent(string(EventSendReceiverPublicKey)))

	// Ciphertext now flows, sender-excluded, and lands in history marked
	// encrypted.
	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventStoreEncryptedMessage, RoomID: roomID, Message: "aXYrY2lwaGVydGV4dA=="})
	events = awaitEvents(t, bob, isEvent(string(EventStoreEncryptedMessage)))
	assert.Equal(t, "aXYrY2lwaGVydGV4dA==", findEvent(events, isEvent(string(EventStoreEncryptedMessage))).Message)

	msgs := store.storedMessages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Encrypted)
}

func TestEncryptionKeyStorage(t *testing.T) {
	hub, _, _ := newTestHub(t, "alice")
	alice := connect(t, hub, "alice", 0)

	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventGetEncryptedKey, RoomID: 9})
	ev := nextEvent(t, alice)
	assert.Equal(t, ServerWarnings, ev.Event)

	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventStoreEncryptedKey, RoomID: 9, Key: "wrapped-key"})
	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventGetEncryptedKey, RoomID: 9})

	ev = nextEvent(t, alice)
	assert.Equal(t, string(EventSendReceiverSecretKey), ev.Event)
	assert.Equal(t, "wrapped-key", ev.Key)
	assert.Equal(t, 9, ev.RoomID)
}

func TestLegacyKeyEventsAreRefused(t *testing.T) {
	hub, _, _ := newTestHub(t, "alice")
	alice := connect(t, hub, "alice", 0)

	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventSendMAC, RoomID: 1})
	ev := nextEvent(t, alice)
	assert.Equal(t, ServerWarnings, ev.Event)
	assert.Contains(t, ev.Text, "not implemented")

	hub.HandleEvent(context.Background(), alice, &Envelope{Event: EventRequestCombinedKey, RoomID: 1})
	ev = nextEvent(t, alice)
	assert.Equal(t, ServerWarnings, ev.Event)
	assert.Contains(t, ev.Text, "not supported")
}
