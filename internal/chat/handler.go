package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"campuschat/internal/user"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	hub  *Hub
	repo Store
	log  *zap.Logger
}

func NewHandler(hub *Hub, repo Store, log *zap.Logger) *Handler {
	return &Handler{hub: hub, repo: repo, log: log}
}

// ServeWs upgrades the connection and wires the client into the hub. The
// room_id cookie (or query param) set by the browser drives the rejoin of the
// previous room.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	roomID := 0
	if c, err := r.Cookie("room_id"); err == nil {
		roomID, _ = strconv.Atoi(c.Value)
	}
	if q := r.URL.Query().Get("room_id"); q != "" {
		roomID, _ = strconv.Atoi(q)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := &Client{
		Hub:      h.hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		ID:       uuid.NewString(),
		Username: claims.Username,
		CanChat:  claims.CanChat,
	}
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	h.hub.Connect(r.Context(), client, roomID)
}

// StartConversation finds or creates the direct room for the caller and the
// named receiver. Lookup is symmetric in the two participants.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Receiver == "" || req.Receiver == claims.Username {
		http.Error(w, "a receiver other than yourself is required", http.StatusBadRequest)
		return
	}

	room, err := h.repo.FindExclusiveRoom(r.Context(), claims.Username, req.Receiver)
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			h.log.Error("finding direct room", zap.Error(err))
			http.Error(w, "could not open conversation", http.StatusInternalServerError)
			return
		}
		name := claims.Username + req.Receiver
		room, err = h.repo.CreateRoom(r.Context(), name, false, newSalt(),
			[]string{claims.Username, req.Receiver})
		if err != nil {
			h.log.Error("creating direct room", zap.Error(err))
			http.Error(w, "could not open conversation", http.StatusInternalServerError)
			return
		}
	}

	json.NewEncoder(w).Encode(map[string]int{"room_id": room.ID})
}

// CreateGroupRoom creates a named group room with the caller as its first
// participant. Others join by being added as participants and connecting with
// the room id.
func (h *Handler) CreateGroupRoom(w http.ResponseWriter, r *http.Request) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "a room name is required", http.StatusBadRequest)
		return
	}

	room, err := h.repo.CreateRoom(r.Context(), req.Name, true, newSalt(), []string{claims.Username})
	if err != nil {
		h.log.Error("creating group room", zap.Error(err))
		http.Error(w, "could not create the room", http.StatusInternalServerError)
		return
	}
	h.hub.Rooms().Track(room.ID)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int{"room_id": room.ID})
}

// GetChatHistory returns the ordered message log for replay on reconnect.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	claims := user.FromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, err := strconv.Atoi(r.URL.Query().Get("room_id"))
	if err != nil {
		http.Error(w, "invalid room_id", http.StatusBadRequest)
		return
	}

	msgs, err := h.repo.RetrieveMessages(r.Context(), roomID)
	if err != nil {
		h.log.Error("loading message history", zap.Int("room_id", roomID), zap.Error(err))
		http.Error(w, "could not load history", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(msgs)
}
