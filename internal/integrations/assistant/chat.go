package assistant

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"eitc-assistant/internal/domain"
)

type chatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Language  string         `json:"language"`
	Context   map[string]any `json:"context"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	Timestamp string `json:"timestamp"`
}

type feedbackRequest struct {
	SessionID    string `json:"session_id"`
	MessageID    string `json:"message_id"`
	Rating       int    `json:"rating"`
	FeedbackText string `json:"feedback_text"`
}

type feedbackResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type historyResponse struct {
	SessionID string `json:"session_id"`
	History   []struct {
		UserMessage       string `json:"user_message"`
		AssistantResponse string `json:"assistant_response"`
		Timestamp         string `json:"timestamp"`
		Language          string `json:"language"`
	} `json:"history"`
	Count int `json:"count"`
}

type languagesResponse struct {
	Languages []domain.Language `json:"languages"`
	Default   string            `json:"default"`
}

// SendMessage posts one user turn and returns the service's reply.
func (c *Client) SendMessage(ctx context.Context, in domain.ChatRequest) (domain.ChatReply, error) {
	body := chatRequest{
		Message:   in.Text,
		SessionID: in.SessionID,
		Language:  in.Language,
		Context:   in.Context,
	}
	if body.Context == nil {
		body.Context = map[string]any{}
	}
	return invoke(ctx, c, c.chat, "send message", func(ctx context.Context) (domain.ChatReply, error) {
		var out chatResponse
		if err := c.doJSON(ctx, "send message", http.MethodPost, "/api/v1/chat", nil, body, &out); err != nil {
			return domain.ChatReply{}, err
		}
		sessionID := out.SessionID
		if sessionID == "" {
			sessionID = in.SessionID
		}
		return domain.ChatReply{
			Response:  out.Response,
			SessionID: sessionID,
			Language:  out.Language,
			Timestamp: parseTimestamp(out.Timestamp),
		}, nil
	})
}

// SubmitFeedback posts a rating for one assistant message.
func (c *Client) SubmitFeedback(ctx context.Context, fb domain.Feedback) (domain.FeedbackAck, error) {
	body := feedbackRequest{
		SessionID:    fb.SessionID,
		MessageID:    fb.MessageID,
		Rating:       fb.Rating,
		FeedbackText: fb.Text,
	}
	return invoke(ctx, c, c.feedback, "submit feedback", func(ctx context.Context) (domain.FeedbackAck, error) {
		var out feedbackResponse
		if err := c.doJSON(ctx, "submit feedback", http.MethodPost, "/api/v1/feedback", nil, body, &out); err != nil {
			return domain.FeedbackAck{}, err
		}
		return domain.FeedbackAck{Message: out.Message, SessionID: out.SessionID}, nil
	})
}

// FetchHistory returns the stored exchanges of a session, oldest first.
func (c *Client) FetchHistory(ctx context.Context, sessionID string) ([]domain.HistoryTurn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("assistant: session id must not be empty")
	}
	path := "/api/v1/session/" + url.PathEscape(sessionID) + "/history"
	return invoke(ctx, c, c.history, "fetch history", func(ctx context.Context) ([]domain.HistoryTurn, error) {
		var out historyResponse
		if err := c.doJSON(ctx, "fetch history", http.MethodGet, path, nil, nil, &out); err != nil {
			return nil, err
		}
		turns := make([]domain.HistoryTurn, 0, len(out.History))
		for _, h := range out.History {
			turns = append(turns, domain.HistoryTurn{
				UserMessage:       h.UserMessage,
				AssistantResponse: h.AssistantResponse,
				Timestamp:         parseTimestamp(h.Timestamp),
				Language:          h.Language,
			})
		}
		return turns, nil
	})
}

// RunCalculation asks the service for an EITC estimate. Inputs are validated
// server-side.
func (c *Client) RunCalculation(ctx context.Context, in domain.CalculationInput) (domain.CalculationResult, error) {
	if in.ChildrenAges == nil {
		in.ChildrenAges = []int{}
	}
	return invoke(ctx, c, c.calculation, "run calculation", func(ctx context.Context) (domain.CalculationResult, error) {
		var out domain.CalculationResult
		if err := c.doJSON(ctx, "run calculation", http.MethodPost, "/api/v1/calculate-eitc", nil, in, &out); err != nil {
			return domain.CalculationResult{}, err
		}
		return out, nil
	})
}

// FetchLanguages lists the locales the service answers in and its default.
func (c *Client) FetchLanguages(ctx context.Context) ([]domain.Language, string, error) {
	out, err := invoke(ctx, c, c.health, "fetch languages", func(ctx context.Context) (languagesResponse, error) {
		var out languagesResponse
		err := c.doJSON(ctx, "fetch languages", http.MethodGet, "/api/v1/languages", nil, nil, &out)
		return out, err
	})
	if err != nil {
		return nil, "", err
	}
	return out.Languages, out.Default, nil
}
