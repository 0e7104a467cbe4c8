package model

import "time"

// Session is short-lived per-user conversational state: which action the next
// free-form message is routed to, and whether the user is writing to support.
type Session struct {
	UserID          int64      `json:"user_id"`
	Mode            ActionKind `json:"mode"`
	AwaitingSupport bool       `json:"awaiting_support"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DefaultSession routes messages to chat.
func DefaultSession(userID int64) *Session {
	return &Session{UserID: userID, Mode: ActionChat}
}
