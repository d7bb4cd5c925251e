package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"campuschat/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func groupRequest(t *testing.T, username, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(body))
	claims := &user.SessionClaims{Username: username, CanPost: true, CanChat: true}
	return req.WithContext(user.NewContext(req.Context(), claims))
}

func TestCreateGroupRoom(t *testing.T) {
	hub, store, _ := newTestHub(t, "alice")
	h := NewHandler(hub, store, zap.NewNop())

	w := httptest.NewRecorder()
	h.CreateGroupRoom(w, groupRequest(t, "alice", `{"name":"study-group"}`))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	roomID := resp["room_id"]
	require.NotZero(t, roomID)

	room, ok := store.rooms[roomID]
	require.True(t, ok)
	assert.True(t, room.IsGroup)
	assert.Equal(t, "study-group", room.Name)
	assert.NotEmpty(t, room.Salt)

	// The creator is the first participant and the hub tracks the room id.
	participants, err := store.GetParticipants(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, participants)
	assert.NotEmpty(t, hub.Rooms().Salt(roomID))
}

func TestCreateGroupRoom_RequiresName(t *testing.T) {
	hub, store, _ := newTestHub(t, "alice")
	h := NewHandler(hub, store, zap.NewNop())

	w := httptest.NewRecorder()
	h.CreateGroupRoom(w, groupRequest(t, "alice", `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.rooms)
}
