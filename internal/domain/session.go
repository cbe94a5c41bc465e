package domain

import "time"

// Session is the client-side identity correlating one user's activity.
type Session struct {
	ID                string    `json:"sessionId"`
	ConversationCount int       `json:"conversationCount"`
	StartTime         time.Time `json:"startTime"`
	LastActivity      time.Time `json:"lastActivity"`
}
