package domain

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of the client-side conversation log.
// Messages are immutable once appended to a log.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// IsWelcome marks the synthetic greeting that is never sent to the service.
	IsWelcome bool `json:"isWelcome,omitempty"`
	// IsError marks an assistant entry synthesized after a failed exchange.
	IsError bool `json:"isError,omitempty"`
}

// FeedbackEligible reports whether the message may be rated.
func (m Message) FeedbackEligible() bool {
	return m.Role == RoleAssistant && !m.IsWelcome
}

// HistoryTurn is one persisted exchange as returned by the answering service.
type HistoryTurn struct {
	UserMessage       string
	AssistantResponse string
	Timestamp         time.Time
	Language          string
}

// ChatRequest is one user turn addressed to the answering service.
type ChatRequest struct {
	Text      string
	SessionID string
	Language  string
	Context   map[string]any
}

// ChatReply is the service's answer to a ChatRequest.
type ChatReply struct {
	Response  string
	SessionID string
	Language  string
	Timestamp time.Time
}
