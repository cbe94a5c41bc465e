package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/integrations/assistant"
	"eitc-assistant/internal/locale"
	"eitc-assistant/internal/repository"
	"eitc-assistant/internal/session"
)

// fakeAPI stands in for the assistant client across all use cases.
type fakeAPI struct {
	mu sync.Mutex

	chatCalls []domain.ChatRequest
	chatFn    func(ctx context.Context, in domain.ChatRequest) (domain.ChatReply, error)

	historyCalls []string
	history      []domain.HistoryTurn
	historyErr   error

	feedbackCalls []domain.Feedback
	feedbackErr   error

	calcCalls []domain.CalculationInput
	calcRes   domain.CalculationResult
	calcErr   error

	loginErr   error
	statsCalls int
	statsErr   error
}

func (f *fakeAPI) SendMessage(ctx context.Context, in domain.ChatRequest) (domain.ChatReply, error) {
	f.mu.Lock()
	f.chatCalls = append(f.chatCalls, in)
	fn := f.chatFn
	f.mu.Unlock()
	if fn == nil {
		return domain.ChatReply{Response: "ok", SessionID: in.SessionID}, nil
	}
	return fn(ctx, in)
}

func (f *fakeAPI) FetchHistory(_ context.Context, sessionID string) ([]domain.HistoryTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls = append(f.historyCalls, sessionID)
	return f.history, f.historyErr
}

func (f *fakeAPI) SubmitFeedback(_ context.Context, fb domain.Feedback) (domain.FeedbackAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbackCalls = append(f.feedbackCalls, fb)
	if f.feedbackErr != nil {
		return domain.FeedbackAck{}, f.feedbackErr
	}
	return domain.FeedbackAck{Message: "Thank you for your feedback!", SessionID: fb.SessionID}, nil
}

func (f *fakeAPI) RunCalculation(_ context.Context, in domain.CalculationInput) (domain.CalculationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calcCalls = append(f.calcCalls, in)
	return f.calcRes, f.calcErr
}

func (f *fakeAPI) Login(_ context.Context, email, _ string) (domain.AdminToken, error) {
	if f.loginErr != nil {
		return domain.AdminToken{}, f.loginErr
	}
	return domain.AdminToken{AccessToken: "jwt-" + email, TokenType: "bearer"}, nil
}

func (f *fakeAPI) FetchAdminStats(_ context.Context, days int) (domain.DashboardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	return domain.DashboardStats{PeriodDays: days}, f.statsErr
}

func (f *fakeAPI) FetchConversations(context.Context, assistant.ConversationQuery) (domain.ConversationPage, error) {
	return domain.ConversationPage{}, nil
}

func (f *fakeAPI) FetchConversation(_ context.Context, id int) (domain.ConversationRecord, error) {
	return domain.ConversationRecord{ID: id}, nil
}

func (f *fakeAPI) FetchFeedback(context.Context, assistant.FeedbackQuery) (domain.FeedbackPage, error) {
	return domain.FeedbackPage{}, nil
}

func (f *fakeAPI) FetchSystemHealth(context.Context) (domain.SystemHealth, error) {
	return domain.SystemHealth{Database: domain.ComponentStatus{Status: "healthy"}}, nil
}

func (f *fakeAPI) chatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chatCalls)
}

type fixture struct {
	kv       *repository.MemoryKV
	sessions *session.Store
	locales  *locale.Store
	conv     *Conversation
}

func newFixture(t *testing.T, api ConversationAPI) *fixture {
	t.Helper()
	kv := repository.NewMemoryKV()
	sessions, err := session.New(kv)
	require.NoError(t, err)
	locales, err := locale.New(kv)
	require.NoError(t, err)
	conv, err := NewConversation(api, sessions, locales)
	require.NoError(t, err)
	return &fixture{kv: kv, sessions: sessions, locales: locales, conv: conv}
}

type notices struct {
	mu   sync.Mutex
	seen []string
}

func (n *notices) Notify(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, text)
}
