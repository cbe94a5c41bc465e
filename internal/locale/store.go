package locale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"eitc-assistant/internal/repository"
)

// Store holds the active locale and persists the user's choice.
type Store struct {
	kv repository.KV

	mu   sync.RWMutex
	code string
}

func New(kv repository.KV) (*Store, error) {
	if kv == nil {
		return nil, errors.New("locale: kv must not be nil")
	}
	return &Store{kv: kv, code: Default}, nil
}

// Load restores the persisted preference. A missing or unsupported value
// leaves the default in place.
func (s *Store) Load(ctx context.Context) error {
	code, ok, err := s.kv.Get(ctx, repository.KeyLanguage)
	if err != nil {
		return fmt.Errorf("locale: load preference: %w", err)
	}
	code = normalize(code)
	if !ok || !Supported(code) {
		return nil
	}
	s.mu.Lock()
	s.code = code
	s.mu.Unlock()
	return nil
}

func (s *Store) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.code
}

// Set switches to code and persists it. Unsupported codes are ignored.
func (s *Store) Set(ctx context.Context, code string) error {
	code = normalize(code)
	if !Supported(code) {
		return nil
	}
	if err := s.kv.Set(ctx, repository.KeyLanguage, code); err != nil {
		return fmt.Errorf("locale: persist preference: %w", err)
	}
	s.mu.Lock()
	s.code = code
	s.mu.Unlock()
	return nil
}

// Strings returns the table for the active locale.
func (s *Store) Strings() Table {
	return TableFor(s.Get())
}

// T resolves key in the active locale.
func (s *Store) T(key string) string {
	return s.Strings().Get(key)
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
