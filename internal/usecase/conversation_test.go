package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/integrations/assistant"
	"eitc-assistant/internal/locale"
	"eitc-assistant/internal/repository"
	"eitc-assistant/internal/resilience"
)

func TestNewConversation_ValidatesDependencies(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	_, err := NewConversation(nil, f.sessions, f.locales)
	require.Error(t, err)
	_, err = NewConversation(&fakeAPI{}, nil, f.locales)
	require.Error(t, err)
	_, err = NewConversation(&fakeAPI{}, f.sessions, nil)
	require.Error(t, err)
}

func TestNewConversation_StartsWithWelcome(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	msgs := f.conv.Messages()
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].IsWelcome)
	require.Equal(t, domain.RoleAssistant, msgs[0].Role)
	require.Equal(t, locale.Lookup(locale.English, locale.KeyWelcome), msgs[0].Content)
	require.False(t, msgs[0].FeedbackEligible())
	require.Equal(t, StateIdle, f.conv.State())
}

func TestSubmit_EligibilityQuestionEndToEnd(t *testing.T) {
	api := &fakeAPI{chatFn: func(_ context.Context, in domain.ChatRequest) (domain.ChatReply, error) {
		return domain.ChatReply{Response: "Yes, based on...", SessionID: in.SessionID}, nil
	}}
	f := newFixture(t, api)

	reply, err := f.conv.Submit(context.Background(), "Am I eligible for EITC?")
	require.NoError(t, err)
	require.Equal(t, "Yes, based on...", reply.Content)

	msgs := f.conv.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, domain.RoleUser, msgs[1].Role)
	require.Equal(t, "Am I eligible for EITC?", msgs[1].Content)
	require.Equal(t, domain.RoleAssistant, msgs[2].Role)
	require.Equal(t, "Yes, based on...", msgs[2].Content)
	require.False(t, msgs[2].IsError)
	require.Equal(t, 1, f.sessions.Current().ConversationCount)
	require.Equal(t, StateIdle, f.conv.State())

	require.Len(t, api.chatCalls, 1)
	sent := api.chatCalls[0]
	require.Equal(t, f.sessions.Current().ID, sent.SessionID)
	require.Equal(t, locale.English, sent.Language)
}

func TestSubmit_UserMessageAppendedBeforeResolution(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	api.chatFn = func(_ context.Context, in domain.ChatRequest) (domain.ChatReply, error) {
		msgs := f.conv.Messages()
		require.Len(t, msgs, 2)
		require.Equal(t, domain.RoleUser, msgs[1].Role)
		require.Equal(t, in.Text, msgs[1].Content)
		require.Equal(t, StatePending, f.conv.State())
		return domain.ChatReply{Response: "answer"}, nil
	}

	_, err := f.conv.Submit(context.Background(), "  What is the income limit?  ")
	require.NoError(t, err)
	require.Equal(t, "What is the income limit?", api.chatCalls[0].Text)
}

func TestSubmit_RejectsEmptyInput(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.conv.Submit(context.Background(), text)
		require.Equal(t, ErrorValidation, Classify(err))
	}
	require.Len(t, f.conv.Messages(), 1)
	require.Zero(t, api.chatCount())
}

func TestSubmit_SecondSubmissionWhilePendingIsNoop(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	var inner error
	var lenDuring int
	api.chatFn = func(ctx context.Context, in domain.ChatRequest) (domain.ChatReply, error) {
		lenDuring = len(f.conv.Messages())
		_, inner = f.conv.Submit(ctx, "second question")
		require.Len(t, f.conv.Messages(), lenDuring)
		return domain.ChatReply{Response: "first answer"}, nil
	}

	_, err := f.conv.Submit(context.Background(), "first question")
	require.NoError(t, err)
	require.ErrorIs(t, inner, ErrExchangePending)
	require.Equal(t, ErrorExchangePending, Classify(inner))
	require.Equal(t, 1, api.chatCount())
	require.Len(t, f.conv.Messages(), 3)
}

func TestSubmit_FailureAppendsLocalErrorMessage(t *testing.T) {
	en := locale.TableFor(locale.English)
	cases := []struct {
		name string
		err  error
		want string
		code ErrorCode
	}{
		{"server", &assistant.ServiceError{StatusCode: 500, Message: "An unexpected error occurred."}, en.Get(locale.KeyErrorGeneric), ErrorServer},
		{"client with payload", &assistant.ServiceError{StatusCode: 400, Code: "unsafe_input", Message: "Please rephrase."}, "Please rephrase.", ErrorClient},
		{"client without payload", &assistant.ServiceError{StatusCode: 404}, en.Get(locale.KeyErrorClient), ErrorClient},
		{"rate limited", &assistant.ServiceError{StatusCode: 429, Message: "slow down"}, en.Get(locale.KeyErrorRateLimited), ErrorClient},
		{"auth", &assistant.ServiceError{StatusCode: 401, Message: "Token has expired"}, en.Get(locale.KeyErrorAuth), ErrorAuth},
		{"network", &assistant.NetworkError{Op: "send message", Err: errors.New("connection refused")}, en.Get(locale.KeyErrorNetwork), ErrorTransport},
		{"unknown", errors.New("boom"), en.Get(locale.KeyErrorGeneric), ErrorInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{chatFn: func(context.Context, domain.ChatRequest) (domain.ChatReply, error) {
				return domain.ChatReply{}, tc.err
			}}
			f := newFixture(t, api)

			msg, err := f.conv.Submit(context.Background(), "hello")
			require.Error(t, err)
			require.Equal(t, tc.code, Classify(err))
			require.True(t, msg.IsError)
			require.Equal(t, tc.want, msg.Content)

			msgs := f.conv.Messages()
			require.Len(t, msgs, 3)
			require.Equal(t, domain.RoleUser, msgs[1].Role)
			require.Equal(t, msg, msgs[2])
			require.Equal(t, StateIdle, f.conv.State())
			require.Zero(t, f.sessions.Current().ConversationCount)
		})
	}
}

func TestSubmit_EmptyResponseIsAnError(t *testing.T) {
	api := &fakeAPI{chatFn: func(context.Context, domain.ChatRequest) (domain.ChatReply, error) {
		return domain.ChatReply{Response: "  "}, nil
	}}
	f := newFixture(t, api)
	msg, err := f.conv.Submit(context.Background(), "hello")
	require.Equal(t, ErrorServer, Classify(err))
	require.True(t, msg.IsError)
	require.Equal(t, StateIdle, f.conv.State())
}

func TestSubmit_RecoversAfterTransientServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal_error","message":"An unexpected error occurred. Please try again."}`))
			return
		}
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response":   "Yes, based on your income you may qualify.",
			"session_id": in["session_id"],
			"language":   in["language"],
			"timestamp":  "2026-03-01T12:00:00",
		})
	}))
	defer srv.Close()

	client, err := assistant.NewClient(srv.URL,
		assistant.WithIntervals(assistant.Intervals{}),
		assistant.WithRetryPolicy(resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}),
	)
	require.NoError(t, err)
	f := newFixture(t, client)

	msg, err := f.conv.Submit(context.Background(), "Am I eligible?")
	require.NoError(t, err)
	require.False(t, msg.IsError)
	require.EqualValues(t, 3, attempts.Load())

	var users, assistants int
	for _, m := range f.conv.Messages() {
		switch {
		case m.IsWelcome:
		case m.Role == domain.RoleUser:
			users++
		case m.Role == domain.RoleAssistant && !m.IsError:
			assistants++
		}
	}
	require.Equal(t, 1, users)
	require.Equal(t, 1, assistants)
}

func TestQuickAction_FillsInputWithoutSubmitting(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)

	require.NoError(t, f.conv.QuickAction(QuickIncomeLimits))
	require.Equal(t, locale.Lookup(locale.English, locale.KeyQuickIncomeLimits), f.conv.Input())
	require.Len(t, f.conv.Messages(), 1)
	require.Zero(t, api.chatCount())

	_, err := f.conv.SubmitInput(context.Background())
	require.NoError(t, err)
	require.Empty(t, f.conv.Input())
	require.Equal(t, locale.Lookup(locale.English, locale.KeyQuickIncomeLimits), api.chatCalls[0].Text)
}

func TestQuickAction_CalculatorOpensModal(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)

	require.NoError(t, f.conv.QuickAction(QuickCalculator))
	require.True(t, f.conv.CalculatorOpen())
	require.Empty(t, f.conv.Input())
	require.Len(t, f.conv.Messages(), 1)

	f.conv.CloseCalculator()
	require.False(t, f.conv.CalculatorOpen())
}

func TestQuickAction_UnknownKey(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	require.Equal(t, ErrorValidation, Classify(f.conv.QuickAction("refund_status")))
}

func TestQuickActionKeys_AllResolve(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	for _, k := range QuickActionKeys() {
		require.NoError(t, f.conv.QuickAction(k), k)
	}
}

func TestSubmitInput_EmptyBufferRejected(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	_, err := f.conv.SubmitInput(context.Background())
	require.Equal(t, ErrorValidation, Classify(err))
	require.Zero(t, api.chatCount())
}

func TestSelectLocale_ReplacesLoneWelcome(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	ctx := context.Background()

	require.NoError(t, f.conv.SelectLocale(ctx, "es"))
	msgs := f.conv.Messages()
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].IsWelcome)
	require.Equal(t, locale.Lookup(locale.Spanish, locale.KeyWelcome), msgs[0].Content)

	stored, ok, err := f.kv.Get(ctx, repository.KeyLanguage)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "es", stored)

	require.NoError(t, f.conv.SelectLocale(ctx, "es"))
	require.NoError(t, f.conv.SelectLocale(ctx, "fr"))
	require.Len(t, f.conv.Messages(), 1)
	require.Equal(t, "es", f.locales.Get())

	require.NoError(t, f.conv.SelectLocale(ctx, "en"))
	msgs = f.conv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, locale.Lookup(locale.English, locale.KeyWelcome), msgs[0].Content)
}

func TestSelectLocale_AppendsWelcomeAfterExchange(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	ctx := context.Background()

	_, err := f.conv.Submit(ctx, "hello")
	require.NoError(t, err)
	require.NoError(t, f.conv.SelectLocale(ctx, "es"))

	msgs := f.conv.Messages()
	require.Len(t, msgs, 4)
	require.Equal(t, domain.RoleUser, msgs[1].Role)
	require.True(t, msgs[3].IsWelcome)
	require.Equal(t, locale.Lookup(locale.Spanish, locale.KeyWelcome), msgs[3].Content)
}

func TestSelectLocale_SubsequentExchangesUseLocale(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	require.NoError(t, f.conv.SelectLocale(context.Background(), "es"))
	_, err := f.conv.Submit(context.Background(), "¿Califico?")
	require.NoError(t, err)
	require.Equal(t, "es", api.chatCalls[0].Language)
}

func TestNewSession_RotatesAndResetsLog(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	ctx := context.Background()

	_, err := f.conv.Submit(ctx, "hello")
	require.NoError(t, err)
	before := f.sessions.Current()
	require.Equal(t, 1, before.ConversationCount)

	after, err := f.conv.NewSession(ctx)
	require.NoError(t, err)
	require.NotEqual(t, before.ID, after.ID)
	require.Zero(t, after.ConversationCount)

	stored, _, err := f.kv.Get(ctx, repository.KeySessionID)
	require.NoError(t, err)
	require.Equal(t, after.ID, stored)

	msgs := f.conv.Messages()
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].IsWelcome)

	_, err = f.conv.Submit(ctx, "again")
	require.NoError(t, err)
	require.Equal(t, after.ID, api.chatCalls[1].SessionID)
}

func TestLoadHistory_ReadOnly(t *testing.T) {
	api := &fakeAPI{history: []domain.HistoryTurn{{UserMessage: "q", AssistantResponse: "a", Language: "en"}}}
	f := newFixture(t, api)

	turns, err := f.conv.LoadHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, []string{f.sessions.Current().ID}, api.historyCalls)
	require.Len(t, f.conv.Messages(), 1)

	api.historyErr = &assistant.ServiceError{StatusCode: 503}
	_, err = f.conv.LoadHistory(context.Background())
	require.Equal(t, ErrorServer, Classify(err))
}

func TestSubscribe_ObservesTransitions(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)

	var states []State
	unsubscribe := f.conv.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	_, err := f.conv.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []State{StatePending, StateIdle}, states)

	unsubscribe()
	f.conv.SetInput("draft")
	require.Len(t, states, 2)
}

func TestMessageIDsAreUnique(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	for i := 0; i < 5; i++ {
		_, err := f.conv.Submit(context.Background(), "q")
		require.NoError(t, err)
	}
	seen := map[string]bool{}
	for _, m := range f.conv.Messages() {
		require.NotEmpty(t, m.ID)
		require.False(t, seen[m.ID])
		seen[m.ID] = true
	}
}

func TestLastAssistantMessage_SkipsWelcome(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	_, ok := f.conv.LastAssistantMessage()
	require.False(t, ok)

	reply, err := f.conv.Submit(context.Background(), "q")
	require.NoError(t, err)
	last, ok := f.conv.LastAssistantMessage()
	require.True(t, ok)
	require.Equal(t, reply.ID, last.ID)
}
