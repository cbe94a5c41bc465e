package assistant

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/resilience"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ConversationQuery filters the admin conversation listing. Zero fields are
// left to the service's defaults.
type ConversationQuery struct {
	Page      int
	PerPage   int
	SessionID string
	Language  string
}

func (q ConversationQuery) values() url.Values {
	v := pageValues(q.Page, q.PerPage)
	if s := strings.TrimSpace(q.SessionID); s != "" {
		v.Set("session_id", s)
	}
	if l := strings.TrimSpace(q.Language); l != "" {
		v.Set("language", l)
	}
	return v
}

type FeedbackQuery struct {
	Page    int
	PerPage int
	Rating  int
}

func (q FeedbackQuery) values() url.Values {
	v := pageValues(q.Page, q.PerPage)
	if domain.ValidRating(q.Rating) {
		v.Set("rating", strconv.Itoa(q.Rating))
	}
	return v
}

func pageValues(page, perPage int) url.Values {
	v := url.Values{}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		v.Set("per_page", strconv.Itoa(perPage))
	}
	return v
}

// Login exchanges administrator credentials for a bearer token. The token is
// returned, not stored.
func (c *Client) Login(ctx context.Context, email, password string) (domain.AdminToken, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.AdminToken{}, errors.New("assistant: email and password must not be empty")
	}
	body := loginRequest{Email: email, Password: password}
	return invoke(ctx, c, c.admin, "login", func(ctx context.Context) (domain.AdminToken, error) {
		var out loginResponse
		if err := c.doJSON(ctx, "login", http.MethodPost, "/admin/login", nil, body, &out); err != nil {
			return domain.AdminToken{}, err
		}
		if out.AccessToken == "" {
			return domain.AdminToken{}, errors.New("assistant: login: empty access token in response")
		}
		tok := domain.AdminToken{AccessToken: out.AccessToken, TokenType: out.TokenType}
		if out.ExpiresIn > 0 {
			tok.ExpiresAt = c.now().Add(time.Duration(out.ExpiresIn) * time.Second)
		}
		return tok, nil
	})
}

// FetchAdminStats returns activity over the trailing days; days <= 0 uses the
// service default.
func (c *Client) FetchAdminStats(ctx context.Context, days int) (domain.DashboardStats, error) {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	return fetch[domain.DashboardStats](ctx, c, c.admin, "fetch admin stats", "/admin/dashboard/stats", q)
}

func (c *Client) FetchConversations(ctx context.Context, q ConversationQuery) (domain.ConversationPage, error) {
	return fetch[domain.ConversationPage](ctx, c, c.admin, "fetch conversations", "/admin/conversations", q.values())
}

func (c *Client) FetchConversation(ctx context.Context, id int) (domain.ConversationRecord, error) {
	if id <= 0 {
		return domain.ConversationRecord{}, errors.New("assistant: conversation id must be positive")
	}
	return fetch[domain.ConversationRecord](ctx, c, c.admin, "fetch conversation", "/admin/conversations/"+strconv.Itoa(id), nil)
}

func (c *Client) FetchFeedback(ctx context.Context, q FeedbackQuery) (domain.FeedbackPage, error) {
	return fetch[domain.FeedbackPage](ctx, c, c.admin, "fetch feedback", "/admin/feedback", q.values())
}

func (c *Client) FetchSystemHealth(ctx context.Context) (domain.SystemHealth, error) {
	return fetch[domain.SystemHealth](ctx, c, c.admin, "fetch system health", "/admin/system/health", nil)
}

// fetch is a paced, retried GET decoding into T.
func fetch[T any](ctx context.Context, c *Client, lim *resilience.Limiter, op, path string, q url.Values) (T, error) {
	return invoke(ctx, c, lim, op, func(ctx context.Context) (T, error) {
		var out T
		err := c.doJSON(ctx, op, http.MethodGet, path, q, nil, &out)
		return out, err
	})
}
