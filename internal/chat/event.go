package chat

import (
	"encoding/json"
	"fmt"
)

// EventKind enumerates the closed set of client events. Dispatch is over
// this enum; unknown kinds are rejected at parse time instead of being
// silently dropped.
type EventKind string

const (
	EventJoin                  EventKind = "join"
	EventSend                  EventKind = "send"
	EventLeave                 EventKind = "leave"
	EventAskReceiverPublicKey  EventKind = "ask_receiver_public_key"
	EventSendReceiverPublicKey EventKind = "send_receiver_public_key"
	EventSendReceiverSecretKey EventKind = "send_receiver_secret_key"
	EventStoreEncryptedKey     EventKind = "store_encrypted_key"
	EventGetEncryptedKey       EventKind = "get_encrypted_key"
	EventStoreEncryptedMessage EventKind = "store_encrypted_message"
	EventGetEncryptedMessages  EventKind = "get_encrypted_messages"
	EventSendMAC               EventKind = "send_mac"
	EventSendCombinedKey       EventKind = "send_combined_key"
	EventRequestCombinedKey    EventKind = "request_combined_key"
)

var knownEvents = map[EventKind]bool{
	EventJoin:                  true,
	EventSend:                  true,
	EventLeave:                 true,
	EventAskReceiverPublicKey:  true,
	EventSendReceiverPublicKey: true,
	EventSendReceiverSecretKey: true,
	EventStoreEncryptedKey:     true,
	EventGetEncryptedKey:       true,
	EventStoreEncryptedMessage: true,
	EventGetEncryptedMessages:  true,
	EventSendMAC:               true,
	EventSendCombinedKey:       true,
	EventRequestCombinedKey:    true,
}

// Envelope is the JSON frame clients send over the websocket.
type Envelope struct {
	Event    EventKind `json:"event"`
	Receiver string    `json:"receiver,omitempty"`
	Message  string    `json:"message,omitempty"`
	RoomID   int       `json:"room_id,omitempty"`
	Key      string    `json:"key,omitempty"`
}

// ParseEnvelope decodes a client frame and rejects unknown event kinds.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if !knownEvents[env.Event] {
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
	return &env, nil
}

// Server→client event names.
const (
	ServerIncoming       = "incoming"
	ServerWarnings       = "warnings"
	ServerConnected      = "connected"
	ServerMessageHistory = "message_history"
)

// Severity tags used by the browser UI to color notices.
const (
	SeverityInfo  = "green"
	SeverityAlert = "red"
)

// ServerEvent is the JSON frame the server pushes to clients.
type ServerEvent struct {
	Event    string    `json:"event"`
	Text     string    `json:"text,omitempty"`
	Severity string    `json:"severity,omitempty"`
	RoomID   int       `json:"room_id,omitempty"`
	Sender   string    `json:"sender,omitempty"`
	Key      string    `json:"key,omitempty"`
	Message  string    `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

func (e ServerEvent) encode() []byte {
	data, _ := json.Marshal(e)
	return data
}

// Incoming builds a chat-pane notice with a severity tag.
func Incoming(text, severity string) ServerEvent {
	return ServerEvent{Event: ServerIncoming, Text: text, Severity: severity}
}

// Warning builds a user-visible warning reply. State conflicts and
// crypto-precondition failures surface this way, never as transport errors.
func Warning(text string) ServerEvent {
	return ServerEvent{Event: ServerWarnings, Text: text, Severity: SeverityAlert}
}

// Connected acknowledges a join with the room id the client now occupies.
func Connected(roomID int) ServerEvent {
	return ServerEvent{Event: ServerConnected, RoomID: roomID}
}
