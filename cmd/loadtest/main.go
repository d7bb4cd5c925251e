package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 50 // pairs of users chatting with each other
	MsgCount  = 20 // messages per user
)

type authResponse struct {
	Token    string `json:"access_token"`
	Username string `json:"username"`
}

type conversationResponse struct {
	RoomID int `json:"room_id"`
}

func main() {
	log.Printf("starting load test: %d users, %d messages each", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("load test complete")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	tokenA := authenticate(userA, pass)
	tokenB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		return
	}

	roomID := startConversation(tokenA, userB)
	if roomID == 0 {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, tokenA, roomID, userA, userB)
	go spamChat(&wsWg, tokenB, roomID, userB, userA)
	wsWg.Wait()
}

// authenticate registers (ignoring the already-exists reply) and logs in.
func authenticate(username, password string) string {
	postJSON("/register", map[string]string{"username": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()

	var data authResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token
}

func startConversation(token, receiver string) int {
	jsonBody, _ := json.Marshal(map[string]string{"receiver": receiver})
	req, _ := http.NewRequest("POST", BaseURL+"/api/conversations", bytes.NewBuffer(jsonBody))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Printf("start conversation failed: %v", err)
		return 0
	}
	defer resp.Body.Close()

	var data conversationResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.RoomID
}

func spamChat(wg *sync.WaitGroup, token string, roomID int, username, receiver string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s&room_id=%d", WSURL, token, roomID), nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", username, err)
		return
	}
	defer conn.Close()

	// Drain server frames so the send buffer never backs up on our side.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	join := map[string]any{"event": "join", "receiver": receiver}
	if err := conn.WriteJSON(join); err != nil {
		log.Printf("join failed [%s]: %v", username, err)
		return
	}

	for i := 0; i < MsgCount; i++ {
		msg := map[string]any{
			"event":   "send",
			"room_id": roomID,
			"message": fmt.Sprintf("load test message %d from %s", i, username),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("send failed [%s]: %v", username, err)
			break
		}
		// simulate a real network instead of an instant localhost loop
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("%s finished sending %d messages", username, MsgCount)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
