package friend

// FriendRequest is a pending (or just-accepted, pre-delete) request row.
type FriendRequest struct {
	ID        int    `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Accepted  bool   `json:"accepted"`
}

// Friend is a friend-list entry with live status for the UI.
type Friend struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

type RequestPayload struct {
	Sender    string `json:"sender"`
	Recipient string `json:"receiver"`
}

type DecisionPayload struct {
	RequestID int `json:"request_id"`
}
