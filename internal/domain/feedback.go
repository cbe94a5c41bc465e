package domain

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Feedback is a rating attached to one assistant message of a session.
type Feedback struct {
	SessionID   string
	MessageID   string
	Rating      int
	Text        string
	SubmittedAt time.Time
}

// ValidRating reports whether r falls within the accepted ordinal scale.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// FeedbackAck is the service's acknowledgement of a submitted Feedback.
type FeedbackAck struct {
	Message   string
	SessionID string
}
