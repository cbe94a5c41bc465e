package repository

import (
	"context"
	"sync"
)

// Keys for the scalar values the client persists between runs.
const (
	KeySessionID   = "eitc_session_id"
	KeySessionMeta = "eitc_session_meta"
	KeyLanguage    = "eitc_language"
	KeyAdminToken  = "eitc_admin_token"
)

// KV is a key-addressed store of scalar client state.
// Get reports ok=false when the key has never been set or was deleted.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryKV is a process-local KV.
type MemoryKV struct {
	mu   sync.RWMutex
	vals map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{vals: map[string]string{}}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, key)
	return nil
}
