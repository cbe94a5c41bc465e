package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/integrations/assistant"
	"eitc-assistant/internal/logger"
)

type AdminAPI interface {
	Login(ctx context.Context, email, password string) (domain.AdminToken, error)
	FetchAdminStats(ctx context.Context, days int) (domain.DashboardStats, error)
	FetchConversations(ctx context.Context, q assistant.ConversationQuery) (domain.ConversationPage, error)
	FetchConversation(ctx context.Context, id int) (domain.ConversationRecord, error)
	FetchFeedback(ctx context.Context, q assistant.FeedbackQuery) (domain.FeedbackPage, error)
	FetchSystemHealth(ctx context.Context) (domain.SystemHealth, error)
}

type HealthAPI interface {
	FetchHealth(ctx context.Context) (domain.Health, error)
	FetchDetailedHealth(ctx context.Context) (domain.Health, error)
	FetchReadiness(ctx context.Context) (domain.Health, error)
	FetchLiveness(ctx context.Context) (domain.Health, error)
}

type CredentialStore interface {
	Token() string
	Set(ctx context.Context, token string) error
	Evict(ctx context.Context) error
	OnEvict(fn func())
}

type AdminState string

const (
	AdminLoginRequired AdminState = "login_required"
	AdminAuthenticated AdminState = "authenticated"
)

// AdminConsole is the authenticated area. Any eviction of the credential,
// including the one the transport performs on a 401, moves it back to
// AdminLoginRequired.
type AdminConsole struct {
	api    AdminAPI
	health HealthAPI
	creds  CredentialStore
	log    *logger.Logger

	mu       sync.Mutex
	state    AdminState
	onChange []func(AdminState)
}

func NewAdminConsole(api AdminAPI, health HealthAPI, creds CredentialStore, l *logger.Logger) (*AdminConsole, error) {
	if api == nil {
		return nil, errors.New("usecase: admin api must not be nil")
	}
	if health == nil {
		return nil, errors.New("usecase: health api must not be nil")
	}
	if creds == nil {
		return nil, errors.New("usecase: credential store must not be nil")
	}
	if l == nil {
		l = logger.NewNop()
	}
	a := &AdminConsole{api: api, health: health, creds: creds, log: l, state: AdminLoginRequired}
	if creds.Token() != "" {
		a.state = AdminAuthenticated
	}
	creds.OnEvict(func() { a.setState(AdminLoginRequired) })
	return a, nil
}

func (a *AdminConsole) State() AdminState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnStateChange registers fn for every state transition.
func (a *AdminConsole) OnStateChange(fn func(AdminState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = append(a.onChange, fn)
}

func (a *AdminConsole) setState(s AdminState) {
	a.mu.Lock()
	if a.state == s {
		a.mu.Unlock()
		return
	}
	a.state = s
	listeners := append([]func(AdminState){}, a.onChange...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// Login authenticates and stores the returned bearer token.
func (a *AdminConsole) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return validationError("credentials_required")
	}
	tok, err := a.api.Login(ctx, email, password)
	if err != nil {
		a.log.Warn("usecase: admin login failed", "email", email, "err", err)
		return remoteError("login_failed", err)
	}
	if err := a.creds.Set(ctx, tok.AccessToken); err != nil {
		return newError(ErrorInternal, "credential_persist_failed", err)
	}
	a.log.Info("usecase: admin logged in", "email", email, "expires_at", tok.ExpiresAt)
	a.setState(AdminAuthenticated)
	return nil
}

// Logout clears the credential.
func (a *AdminConsole) Logout(ctx context.Context) error {
	if err := a.creds.Evict(ctx); err != nil {
		return newError(ErrorInternal, "credential_evict_failed", err)
	}
	return nil
}

func (a *AdminConsole) requireLogin() error {
	if a.State() != AdminAuthenticated || a.creds.Token() == "" {
		return newError(ErrorAuth, "login_required", nil)
	}
	return nil
}

// authed runs call only when a credential is held.
func authed[T any](ctx context.Context, a *AdminConsole, reason string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := a.requireLogin(); err != nil {
		return zero, err
	}
	v, err := call(ctx)
	if err != nil {
		return zero, remoteError(reason, err)
	}
	return v, nil
}

func (a *AdminConsole) Stats(ctx context.Context, days int) (domain.DashboardStats, error) {
	return authed(ctx, a, "stats_failed", func(ctx context.Context) (domain.DashboardStats, error) {
		return a.api.FetchAdminStats(ctx, days)
	})
}

func (a *AdminConsole) Conversations(ctx context.Context, q assistant.ConversationQuery) (domain.ConversationPage, error) {
	return authed(ctx, a, "conversations_failed", func(ctx context.Context) (domain.ConversationPage, error) {
		return a.api.FetchConversations(ctx, q)
	})
}

func (a *AdminConsole) Conversation(ctx context.Context, id int) (domain.ConversationRecord, error) {
	return authed(ctx, a, "conversation_failed", func(ctx context.Context) (domain.ConversationRecord, error) {
		return a.api.FetchConversation(ctx, id)
	})
}

func (a *AdminConsole) Feedback(ctx context.Context, q assistant.FeedbackQuery) (domain.FeedbackPage, error) {
	return authed(ctx, a, "feedback_failed", func(ctx context.Context) (domain.FeedbackPage, error) {
		return a.api.FetchFeedback(ctx, q)
	})
}

func (a *AdminConsole) SystemHealth(ctx context.Context) (domain.SystemHealth, error) {
	return authed(ctx, a, "system_health_failed", func(ctx context.Context) (domain.SystemHealth, error) {
		return a.api.FetchSystemHealth(ctx)
	})
}

// HealthReport is the combined public health view.
type HealthReport struct {
	Summary  domain.Health
	Detailed domain.Health
	Ready    domain.Health
	Live     domain.Health
}

// Health reads the public health endpoints; no login is needed. Failures of
// the probes after the summary are recorded as the probe's Error.
func (a *AdminConsole) Health(ctx context.Context) (HealthReport, error) {
	summary, err := a.health.FetchHealth(ctx)
	if err != nil {
		return HealthReport{}, remoteError("health_failed", err)
	}
	r := HealthReport{Summary: summary}
	probe := func(fetch func(context.Context) (domain.Health, error)) domain.Health {
		h, err := fetch(ctx)
		if err != nil {
			return domain.Health{Status: "unavailable", Error: err.Error()}
		}
		return h
	}
	r.Detailed = probe(a.health.FetchDetailedHealth)
	r.Ready = probe(a.health.FetchReadiness)
	r.Live = probe(a.health.FetchLiveness)
	return r, nil
}
