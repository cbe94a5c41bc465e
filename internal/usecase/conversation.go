package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/integrations/assistant"
	"eitc-assistant/internal/locale"
	"eitc-assistant/internal/logger"
)

type ConversationAPI interface {
	SendMessage(ctx context.Context, in domain.ChatRequest) (domain.ChatReply, error)
	FetchHistory(ctx context.Context, sessionID string) ([]domain.HistoryTurn, error)
}

type SessionStore interface {
	GetOrCreate(ctx context.Context) (domain.Session, error)
	Rotate(ctx context.Context) (domain.Session, error)
	Touch()
	RecordExchange(ctx context.Context) error
	Current() domain.Session
}

type LocaleStore interface {
	Get() string
	Set(ctx context.Context, code string) error
	T(key string) string
}

type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
)

// Quick action keys. QuickCalculator opens the calculator instead of
// filling the input.
const (
	QuickEligibility     = "eligibility"
	QuickIncomeLimits    = "income_limits"
	QuickQualifyingChild = "qualifying_child"
	QuickHowToClaim      = "how_to_claim"
	QuickCalculator      = "calculator"
)

var quickActions = map[string]string{
	QuickEligibility:     locale.KeyQuickEligibility,
	QuickIncomeLimits:    locale.KeyQuickIncomeLimits,
	QuickQualifyingChild: locale.KeyQuickQualifyingChild,
	QuickHowToClaim:      locale.KeyQuickHowToClaim,
}

// QuickActionKeys lists the quick actions in display order.
func QuickActionKeys() []string {
	return []string{QuickEligibility, QuickIncomeLimits, QuickQualifyingChild, QuickHowToClaim, QuickCalculator}
}

// Snapshot is a consistent copy of the conversation for observers.
type Snapshot struct {
	State          State
	Messages       []domain.Message
	Input          string
	CalculatorOpen bool
	Locale         string
	Session        domain.Session
}

// Conversation is the message-exchange state machine. Its log is
// append-only; a user message is appended before its request is sent and is
// followed by exactly one assistant message once the exchange resolves.
type Conversation struct {
	api      ConversationAPI
	sessions SessionStore
	locales  LocaleStore
	log      *logger.Logger
	now      func() time.Time

	mu             sync.Mutex
	state          State
	messages       []domain.Message
	input          string
	calculatorOpen bool
	subscribers    map[int]func(Snapshot)
	nextSub        int
}

type ConversationOption func(*Conversation)

func WithConversationLogger(l *logger.Logger) ConversationOption {
	return func(c *Conversation) {
		if l != nil {
			c.log = l
		}
	}
}

func WithConversationClock(now func() time.Time) ConversationOption {
	return func(c *Conversation) { c.now = now }
}

// NewConversation returns an idle conversation whose log holds the welcome
// message of the active locale.
func NewConversation(api ConversationAPI, sessions SessionStore, locales LocaleStore, opts ...ConversationOption) (*Conversation, error) {
	if api == nil {
		return nil, errors.New("usecase: conversation api must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if locales == nil {
		return nil, errors.New("usecase: locale store must not be nil")
	}
	c := &Conversation{
		api:         api,
		sessions:    sessions,
		locales:     locales,
		log:         logger.NewNop(),
		now:         time.Now,
		state:       StateIdle,
		subscribers: map[int]func(Snapshot){},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.messages = []domain.Message{c.welcomeLocked()}
	return c, nil
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned func removes the subscription.
func (c *Conversation) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conversation) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.messages...)
}

// Message looks up a logged message by id.
func (c *Conversation) Message(id string) (domain.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

// LastAssistantMessage returns the newest rateable message.
func (c *Conversation) LastAssistantMessage() (domain.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].FeedbackEligible() {
			return c.messages[i], true
		}
	}
	return domain.Message{}, false
}

// Submit sends text as one exchange and returns the terminal assistant
// message. Empty input and submissions during a pending exchange are
// rejected without touching the log. A failed exchange still appends an
// error message and returns it together with the classified error.
func (c *Conversation) Submit(ctx context.Context, text string) (domain.Message, error) {
	return c.submit(ctx, text, false)
}

// SubmitInput submits the input buffer, clearing it once accepted.
func (c *Conversation) SubmitInput(ctx context.Context) (domain.Message, error) {
	c.mu.Lock()
	text := c.input
	c.mu.Unlock()
	return c.submit(ctx, text, true)
}

func (c *Conversation) submit(ctx context.Context, text string, fromInput bool) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, validationError("empty_message")
	}
	if c.State() == StatePending {
		return domain.Message{}, ErrExchangePending
	}
	sess, err := c.sessions.GetOrCreate(ctx)
	if err != nil {
		return domain.Message{}, newError(ErrorInternal, "session_unavailable", err)
	}

	c.mu.Lock()
	if c.state == StatePending {
		c.mu.Unlock()
		return domain.Message{}, ErrExchangePending
	}
	c.messages = append(c.messages, c.newMessageLocked(domain.RoleUser, text))
	c.state = StatePending
	if fromInput {
		c.input = ""
	}
	lang := c.locales.Get()
	c.mu.Unlock()
	c.sessions.Touch()
	c.notify()

	reply, err := c.api.SendMessage(ctx, domain.ChatRequest{
		Text:      text,
		SessionID: sess.ID,
		Language:  lang,
		Context:   map[string]any{"conversation_count": sess.ConversationCount},
	})
	if err == nil && strings.TrimSpace(reply.Response) == "" {
		err = newError(ErrorServer, "empty_response", nil)
	}

	c.mu.Lock()
	var terminal domain.Message
	if err != nil {
		terminal = c.newMessageLocked(domain.RoleAssistant, c.failureText(err))
		terminal.IsError = true
	} else {
		terminal = c.newMessageLocked(domain.RoleAssistant, reply.Response)
	}
	c.messages = append(c.messages, terminal)
	c.state = StateIdle
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("usecase: exchange failed", "session_id", sess.ID, "code", string(Classify(err)), "err", err)
		c.notify()
		return terminal, remoteError("send_failed", err)
	}
	if err := c.sessions.RecordExchange(ctx); err != nil {
		c.log.Warn("usecase: exchange count not persisted", "session_id", sess.ID, "err", err)
	}
	c.notify()
	return terminal, nil
}

// failureText picks the locally sourced text shown for a failed exchange.
func (c *Conversation) failureText(err error) string {
	if se, ok := assistant.AsServiceError(err); ok {
		switch {
		case se.IsAuth():
			return c.locales.T(locale.KeyErrorAuth)
		case se.StatusCode == http.StatusTooManyRequests:
			return c.locales.T(locale.KeyErrorRateLimited)
		case se.IsClient() && strings.TrimSpace(se.Message) != "":
			return se.Message
		case se.IsClient():
			return c.locales.T(locale.KeyErrorClient)
		}
		return c.locales.T(locale.KeyErrorGeneric)
	}
	if Classify(err) == ErrorTransport {
		return c.locales.T(locale.KeyErrorNetwork)
	}
	return c.locales.T(locale.KeyErrorGeneric)
}

func (c *Conversation) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
	c.notify()
}

func (c *Conversation) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// QuickAction fills the input buffer with the canned question for key. The
// calculator key opens the calculator instead. Neither submits.
func (c *Conversation) QuickAction(key string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	c.mu.Lock()
	if key == QuickCalculator {
		c.calculatorOpen = true
	} else {
		textKey, ok := quickActions[key]
		if !ok {
			c.mu.Unlock()
			return validationError("unknown_quick_action")
		}
		c.input = c.locales.T(textKey)
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Conversation) CalculatorOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calculatorOpen
}

func (c *Conversation) CloseCalculator() {
	c.mu.Lock()
	c.calculatorOpen = false
	c.mu.Unlock()
	c.notify()
}

// SelectLocale switches the active locale. Selecting a different supported
// locale shows one welcome in that locale: a log that holds nothing but the
// welcome is replaced, otherwise the welcome is appended. Unsupported codes
// and re-selecting the active locale change nothing.
func (c *Conversation) SelectLocale(ctx context.Context, code string) error {
	if c.State() == StatePending {
		return ErrExchangePending
	}
	prev := c.locales.Get()
	if err := c.locales.Set(ctx, code); err != nil {
		return newError(ErrorInternal, "locale_persist_failed", err)
	}
	if c.locales.Get() == prev {
		return nil
	}
	c.mu.Lock()
	if len(c.messages) == 1 && c.messages[0].IsWelcome {
		c.messages = []domain.Message{c.welcomeLocked()}
	} else {
		c.messages = append(c.messages, c.welcomeLocked())
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// NewSession rotates the session identity and starts a fresh log.
func (c *Conversation) NewSession(ctx context.Context) (domain.Session, error) {
	if c.State() == StatePending {
		return domain.Session{}, ErrExchangePending
	}
	sess, err := c.sessions.Rotate(ctx)
	if err != nil {
		return domain.Session{}, newError(ErrorInternal, "session_rotate_failed", err)
	}
	c.mu.Lock()
	c.messages = []domain.Message{c.welcomeLocked()}
	c.input = ""
	c.mu.Unlock()
	c.notify()
	return sess, nil
}

// LoadHistory reads the server-side history of the current session. The
// local log is not modified.
func (c *Conversation) LoadHistory(ctx context.Context) ([]domain.HistoryTurn, error) {
	sess, err := c.sessions.GetOrCreate(ctx)
	if err != nil {
		return nil, newError(ErrorInternal, "session_unavailable", err)
	}
	turns, err := c.api.FetchHistory(ctx, sess.ID)
	if err != nil {
		return nil, remoteError("history_failed", err)
	}
	return turns, nil
}

func (c *Conversation) welcomeLocked() domain.Message {
	m := c.newMessageLocked(domain.RoleAssistant, c.locales.T(locale.KeyWelcome))
	m.IsWelcome = true
	return m
}

func (c *Conversation) newMessageLocked(role domain.Role, content string) domain.Message {
	return domain.Message{
		ID:        newMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
	}
}

func (c *Conversation) snapshotLocked() Snapshot {
	return Snapshot{
		State:          c.state,
		Messages:       append([]domain.Message(nil), c.messages...),
		Input:          c.input,
		CalculatorOpen: c.calculatorOpen,
		Locale:         c.locales.Get(),
		Session:        c.sessions.Current(),
	}
}

// notify delivers a snapshot to every subscriber outside the lock.
func (c *Conversation) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

var newMessageID = func() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
