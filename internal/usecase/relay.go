package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/locale"
	"eitc-assistant/internal/logger"
	"eitc-assistant/internal/repository"
	"eitc-assistant/internal/session"
)

// StateFactory returns the persisted client state of one caller.
type StateFactory func(clientID string) (repository.KV, error)

type RelayChatInput struct {
	ClientID string
	Message  string
	Language string
}

type RelayChatOutput struct {
	Response  string
	MessageID string
	SessionID string
	Language  string
	IsError   bool
}

// Relay runs a one-exchange Conversation per request on behalf of a remote
// caller, keeping that caller's session and language in its own state. At
// most one exchange per client is in flight within a process.
type Relay struct {
	api   ConversationAPI
	state StateFactory
	log   *logger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewRelay(api ConversationAPI, state StateFactory, l *logger.Logger) (*Relay, error) {
	if api == nil {
		return nil, errors.New("usecase: conversation api must not be nil")
	}
	if state == nil {
		return nil, errors.New("usecase: state factory must not be nil")
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Relay{api: api, state: state, log: l, inflight: map[string]struct{}{}}, nil
}

type clientStores struct {
	sessions *session.Store
	locales  *locale.Store
}

func (r *Relay) stores(ctx context.Context, clientID string) (clientStores, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return clientStores{}, validationError("client_id_required")
	}
	kv, err := r.state(clientID)
	if err != nil {
		return clientStores{}, newError(ErrorInternal, "state_unavailable", err)
	}
	sessions, err := session.New(kv)
	if err != nil {
		return clientStores{}, newError(ErrorInternal, "session_store_error", err)
	}
	locales, err := locale.New(kv)
	if err != nil {
		return clientStores{}, newError(ErrorInternal, "locale_store_error", err)
	}
	if err := locales.Load(ctx); err != nil {
		return clientStores{}, newError(ErrorInternal, "locale_load_error", err)
	}
	return clientStores{sessions: sessions, locales: locales}, nil
}

// acquire claims clientID for one exchange. The returned func releases it.
func (r *Relay) acquire(clientID string) (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[clientID]; busy {
		return nil, false
	}
	r.inflight[clientID] = struct{}{}
	return func() {
		r.mu.Lock()
		delete(r.inflight, clientID)
		r.mu.Unlock()
	}, true
}

// Chat submits one message for the caller. A failed exchange returns the
// user-facing error text in the output along with the classified error.
// A second message for a client whose exchange is still pending is rejected
// with ErrExchangePending.
func (r *Relay) Chat(ctx context.Context, in RelayChatInput) (RelayChatOutput, error) {
	if strings.TrimSpace(in.Message) == "" {
		return RelayChatOutput{}, validationError("empty_message")
	}
	clientID := strings.TrimSpace(in.ClientID)
	if clientID == "" {
		return RelayChatOutput{}, validationError("client_id_required")
	}
	release, ok := r.acquire(clientID)
	if !ok {
		r.log.Info("usecase: relay exchange already pending", "client_id", clientID)
		return RelayChatOutput{}, ErrExchangePending
	}
	defer release()

	st, err := r.stores(ctx, clientID)
	if err != nil {
		return RelayChatOutput{}, err
	}
	if in.Language != "" {
		if err := st.locales.Set(ctx, in.Language); err != nil {
			return RelayChatOutput{}, newError(ErrorInternal, "locale_persist_error", err)
		}
	}

	conv, err := NewConversation(r.api, st.sessions, st.locales, WithConversationLogger(r.log))
	if err != nil {
		return RelayChatOutput{}, newError(ErrorInternal, "conversation_error", err)
	}
	msg, err := conv.Submit(ctx, in.Message)
	out := RelayChatOutput{
		Response:  msg.Content,
		MessageID: msg.ID,
		SessionID: st.sessions.Current().ID,
		Language:  st.locales.Get(),
		IsError:   msg.IsError,
	}
	return out, err
}

// NewSession rotates the caller's session identity. It is rejected while an
// exchange for the client is pending.
func (r *Relay) NewSession(ctx context.Context, clientID string) (domain.Session, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return domain.Session{}, validationError("client_id_required")
	}
	release, ok := r.acquire(clientID)
	if !ok {
		return domain.Session{}, ErrExchangePending
	}
	defer release()

	st, err := r.stores(ctx, clientID)
	if err != nil {
		return domain.Session{}, err
	}
	sess, err := st.sessions.Rotate(ctx)
	if err != nil {
		return domain.Session{}, newError(ErrorInternal, "session_rotate_failed", err)
	}
	r.log.Info("usecase: relay session rotated", "client_id", clientID, "session_id", sess.ID)
	return sess, nil
}
