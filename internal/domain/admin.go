package domain

import "time"

// DashboardStats summarises service activity over a trailing window.
type DashboardStats struct {
	PeriodDays           int            `json:"period_days"`
	TotalConversations   int            `json:"total_conversations"`
	RecentConversations  int            `json:"recent_conversations"`
	UniqueSessions       int            `json:"unique_sessions"`
	LanguageDistribution map[string]int `json:"language_distribution"`
	Feedback             FeedbackStats  `json:"feedback"`
	LastUpdated          string         `json:"last_updated"`
}

type FeedbackStats struct {
	AverageRating float64 `json:"average_rating"`
	TotalFeedback int     `json:"total_feedback"`
}

// ConversationRecord is a stored exchange as seen by administrators.
type ConversationRecord struct {
	ID                int            `json:"id"`
	SessionID         string         `json:"session_id"`
	UserMessage       string         `json:"user_message"`
	AssistantResponse string         `json:"assistant_response"`
	Language          string         `json:"language"`
	Context           map[string]any `json:"context,omitempty"`
	Timestamp         string         `json:"timestamp"`
}

type FeedbackRecord struct {
	ID           int    `json:"id"`
	SessionID    string `json:"session_id"`
	Rating       int    `json:"rating"`
	FeedbackText string `json:"feedback_text"`
	Timestamp    string `json:"timestamp"`
}

type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

type ConversationPage struct {
	Conversations []ConversationRecord `json:"conversations"`
	Pagination    Pagination           `json:"pagination"`
}

type FeedbackPage struct {
	Feedback   []FeedbackRecord `json:"feedback"`
	Pagination Pagination       `json:"pagination"`
}

// Health is the liveness/readiness view of the answering service.
type Health struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp"`
	Service     string            `json:"service,omitempty"`
	Version     string            `json:"version,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Services    map[string]string `json:"services,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// AdminToken is the bearer credential returned by a successful login.
type AdminToken struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// Language is one supported UI locale.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ComponentStatus is one subsystem entry of the admin system-health view.
type ComponentStatus struct {
	Status         string `json:"status"`
	ConnectionPool string `json:"connection_pool,omitempty"`
}

type SystemHealth struct {
	Database     ComponentStatus `json:"database"`
	LLMService   ComponentStatus `json:"llm_service"`
	SafetyFilter ComponentStatus `json:"safety_filter"`
	LastChecked  string          `json:"last_checked"`
}
