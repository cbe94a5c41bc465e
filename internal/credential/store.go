// Package credential holds the admin bearer token the client attaches to
// outbound requests.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"eitc-assistant/internal/repository"
)

// Store is the persisted bearer credential. Eviction listeners run after the
// token has been cleared.
type Store struct {
	kv repository.KV

	mu      sync.RWMutex
	token   string
	onEvict []func()
}

func New(kv repository.KV) (*Store, error) {
	if kv == nil {
		return nil, errors.New("credential: kv must not be nil")
	}
	return &Store{kv: kv}, nil
}

// Load restores a previously persisted token.
func (s *Store) Load(ctx context.Context) error {
	tok, ok, err := s.kv.Get(ctx, repository.KeyAdminToken)
	if err != nil {
		return fmt.Errorf("credential: load token: %w", err)
	}
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.token = strings.TrimSpace(tok)
	s.mu.Unlock()
	return nil
}

// Token returns the current token, or "" when none is held.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) Set(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credential: token must not be empty")
	}
	if err := s.kv.Set(ctx, repository.KeyAdminToken, token); err != nil {
		return fmt.Errorf("credential: persist token: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// OnEvict registers fn to run on every eviction.
func (s *Store) OnEvict(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = append(s.onEvict, fn)
}

// Evict clears the token in memory first, then in storage. The in-memory
// clear always happens even if the storage delete fails.
func (s *Store) Evict(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	listeners := append([]func(){}, s.onEvict...)
	s.mu.Unlock()

	err := s.kv.Delete(ctx, repository.KeyAdminToken)
	for _, fn := range listeners {
		fn()
	}
	if err != nil {
		return fmt.Errorf("credential: delete token: %w", err)
	}
	return nil
}
