package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/repository"
)

// Store owns the single active session of a client. The identifier and the
// session metadata are persisted in a KV; metadata is only restored when it
// belongs to the persisted identifier.
type Store struct {
	kv  repository.KV
	now func() time.Time

	mu      sync.RWMutex
	current domain.Session
	loaded  bool
}

type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(kv repository.KV, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("session: kv must not be nil")
	}
	s := &Store{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetOrCreate returns the active session, loading the persisted identifier
// or generating and persisting a fresh one on first use.
func (s *Store) GetOrCreate(ctx context.Context) (domain.Session, error) {
	s.mu.RLock()
	if s.loaded {
		cur := s.current
		s.mu.RUnlock()
		return cur, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.current, nil
	}

	id, ok, err := s.kv.Get(ctx, repository.KeySessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: load id: %w", err)
	}
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		id = newID()
		if err := s.kv.Set(ctx, repository.KeySessionID, id); err != nil {
			return domain.Session{}, fmt.Errorf("session: persist id: %w", err)
		}
	}
	cur, err := s.restore(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	s.current = cur
	s.loaded = true
	return s.current, nil
}

// meta is the persisted form of the session metadata.
type meta struct {
	ID                string    `json:"id"`
	StartTime         time.Time `json:"start_time"`
	ConversationCount int       `json:"conversation_count"`
}

func (s *Store) restore(ctx context.Context, id string) (domain.Session, error) {
	sess := s.fresh(id)
	raw, ok, err := s.kv.Get(ctx, repository.KeySessionMeta)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: load metadata: %w", err)
	}
	if !ok {
		return sess, nil
	}
	var m meta
	// Unreadable or foreign metadata starts the session fresh.
	if json.Unmarshal([]byte(raw), &m) != nil || m.ID != id || m.ConversationCount < 0 {
		return sess, nil
	}
	if !m.StartTime.IsZero() {
		sess.StartTime = m.StartTime
	}
	sess.ConversationCount = m.ConversationCount
	return sess, nil
}

func (s *Store) persist(ctx context.Context, sess domain.Session) error {
	raw, err := json.Marshal(meta{ID: sess.ID, StartTime: sess.StartTime, ConversationCount: sess.ConversationCount})
	if err != nil {
		return fmt.Errorf("session: encode metadata: %w", err)
	}
	if err := s.kv.Set(ctx, repository.KeySessionMeta, string(raw)); err != nil {
		return fmt.Errorf("session: persist metadata: %w", err)
	}
	return nil
}

// Rotate replaces the active session with a new identifier and reset
// metadata. Readers observe either the old or the new session, never a mix.
func (s *Store) Rotate(ctx context.Context) (domain.Session, error) {
	next := s.fresh(newID())
	// Metadata first: if the id write then fails, the stored metadata names
	// an id that was never persisted and is ignored on restore.
	if err := s.persist(ctx, next); err != nil {
		return domain.Session{}, err
	}
	if err := s.kv.Set(ctx, repository.KeySessionID, next.ID); err != nil {
		return domain.Session{}, fmt.Errorf("session: persist rotated id: %w", err)
	}

	s.mu.Lock()
	s.current = next
	s.loaded = true
	s.mu.Unlock()
	return next, nil
}

// Touch marks user activity.
func (s *Store) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.LastActivity = s.now()
}

// RecordExchange marks activity, counts one completed exchange and persists
// the new count. The in-memory count advances even when persisting fails.
func (s *Store) RecordExchange(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.LastActivity = s.now()
	s.current.ConversationCount++
	return s.persist(ctx, s.current)
}

// Current returns a snapshot of the active session.
func (s *Store) Current() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) fresh(id string) domain.Session {
	now := s.now()
	return domain.Session{ID: id, StartTime: now, LastActivity: now}
}

var newID = func() string {
	return uuid.NewString()
}
