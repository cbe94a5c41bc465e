package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/repository"
)

type failingKV struct {
	getErr error
	setErr error
}

func (f *failingKV) Get(context.Context, string) (string, bool, error) { return "", false, f.getErr }
func (f *failingKV) Set(context.Context, string, string) error         { return f.setErr }
func (f *failingKV) Delete(context.Context, string) error              { return nil }

type tick struct{ t time.Time }

func (c *tick) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, kv repository.KV) (*Store, *tick) {
	t.Helper()
	clock := &tick{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
	s, err := New(kv, WithClock(clock.now))
	require.NoError(t, err)
	return s, clock
}

func TestNew_NilKV(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGetOrCreate_GeneratesAndPersists(t *testing.T) {
	kv := repository.NewMemoryKV()
	s, _ := newTestStore(t, kv)

	sess, err := s.GetOrCreate(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.Zero(t, sess.ConversationCount)
	require.Equal(t, sess.StartTime, sess.LastActivity)

	persisted, ok, err := kv.Get(context.Background(), repository.KeySessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sess.ID, persisted)

	again, err := s.GetOrCreate(context.Background())
	require.NoError(t, err)
	require.Equal(t, sess, again)
}

func TestGetOrCreate_ReusesPersistedID(t *testing.T) {
	kv := repository.NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), repository.KeySessionID, "persisted-id"))
	s, _ := newTestStore(t, kv)

	sess, err := s.GetOrCreate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "persisted-id", sess.ID)
}

func TestGetOrCreate_StorageErrors(t *testing.T) {
	s, _ := newTestStore(t, &failingKV{getErr: errors.New("disk gone")})
	_, err := s.GetOrCreate(context.Background())
	require.ErrorContains(t, err, "load id")

	s, _ = newTestStore(t, &failingKV{setErr: errors.New("read-only")})
	_, err = s.GetOrCreate(context.Background())
	require.ErrorContains(t, err, "persist id")
}

func TestRotate_ResetsMetadataAndPersists(t *testing.T) {
	kv := repository.NewMemoryKV()
	s, _ := newTestStore(t, kv)
	first, err := s.GetOrCreate(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.RecordExchange(context.Background()))
	require.NoError(t, s.RecordExchange(context.Background()))
	require.Equal(t, 2, s.Current().ConversationCount)

	rotated, err := s.Rotate(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.ID, rotated.ID)
	require.Zero(t, rotated.ConversationCount)
	require.True(t, rotated.StartTime.After(first.StartTime))
	require.Equal(t, rotated, s.Current())

	persisted, _, err := kv.Get(context.Background(), repository.KeySessionID)
	require.NoError(t, err)
	require.Equal(t, rotated.ID, persisted)
}

func TestRotate_PersistFailureKeepsCurrent(t *testing.T) {
	kv := &failingKV{}
	s, _ := newTestStore(t, kv)
	before, err := s.GetOrCreate(context.Background())
	require.NoError(t, err)

	kv.setErr = errors.New("read-only")
	_, err = s.Rotate(context.Background())
	require.Error(t, err)
	require.Equal(t, before.ID, s.Current().ID)
}

func TestTouchAndRecordExchange(t *testing.T) {
	s, _ := newTestStore(t, repository.NewMemoryKV())
	sess, err := s.GetOrCreate(context.Background())
	require.NoError(t, err)

	s.Touch()
	touched := s.Current()
	require.True(t, touched.LastActivity.After(sess.LastActivity))
	require.Zero(t, touched.ConversationCount)
	require.Equal(t, sess.StartTime, touched.StartTime)

	require.NoError(t, s.RecordExchange(context.Background()))
	recorded := s.Current()
	require.Equal(t, 1, recorded.ConversationCount)
	require.True(t, recorded.LastActivity.After(touched.LastActivity))
}

func TestRecordExchange_SurvivesReload(t *testing.T) {
	kv := repository.NewMemoryKV()
	ctx := context.Background()
	s, _ := newTestStore(t, kv)
	first, err := s.GetOrCreate(ctx)
	require.NoError(t, err)
	require.NoError(t, s.RecordExchange(ctx))
	require.NoError(t, s.RecordExchange(ctx))

	reloaded, _ := newTestStore(t, kv)
	sess, err := reloaded.GetOrCreate(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, sess.ID)
	require.Equal(t, 2, sess.ConversationCount)
	require.True(t, sess.StartTime.Equal(first.StartTime))
}

func TestGetOrCreate_IgnoresForeignMetadata(t *testing.T) {
	kv := repository.NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, repository.KeySessionID, "current-id"))
	require.NoError(t, kv.Set(ctx, repository.KeySessionMeta, `{"id":"older-id","conversation_count":7}`))

	s, _ := newTestStore(t, kv)
	sess, err := s.GetOrCreate(ctx)
	require.NoError(t, err)
	require.Equal(t, "current-id", sess.ID)
	require.Zero(t, sess.ConversationCount)

	require.NoError(t, kv.Set(ctx, repository.KeySessionMeta, `not json`))
	s, _ = newTestStore(t, kv)
	sess, err = s.GetOrCreate(ctx)
	require.NoError(t, err)
	require.Zero(t, sess.ConversationCount)
}

func TestRotate_PersistsFreshMetadata(t *testing.T) {
	kv := repository.NewMemoryKV()
	ctx := context.Background()
	s, _ := newTestStore(t, kv)
	_, err := s.GetOrCreate(ctx)
	require.NoError(t, err)
	require.NoError(t, s.RecordExchange(ctx))

	rotated, err := s.Rotate(ctx)
	require.NoError(t, err)

	reloaded, _ := newTestStore(t, kv)
	sess, err := reloaded.GetOrCreate(ctx)
	require.NoError(t, err)
	require.Equal(t, rotated.ID, sess.ID)
	require.Zero(t, sess.ConversationCount)
}

func TestRecordExchange_PersistFailureStillCounts(t *testing.T) {
	kv := &failingKV{}
	s, _ := newTestStore(t, kv)
	_, err := s.GetOrCreate(context.Background())
	require.NoError(t, err)

	kv.setErr = errors.New("read-only")
	require.ErrorContains(t, s.RecordExchange(context.Background()), "persist metadata")
	require.Equal(t, 1, s.Current().ConversationCount)
}

// syncClock is a tick clock safe for concurrent use.
type syncClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *syncClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestRotate_ReadersNeverSeeMixedSession(t *testing.T) {
	clock := &syncClock{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
	s, err := New(repository.NewMemoryKV(), WithClock(clock.now))
	require.NoError(t, err)
	ctx := context.Background()
	initial, err := s.GetOrCreate(ctx)
	require.NoError(t, err)

	const rotations = 200
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  = map[string]domain.Session{initial.ID: initial}
		seen    []domain.Session
		rotated = make(chan struct{})
	)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(useGet bool) {
			defer wg.Done()
			var local []domain.Session
			for {
				select {
				case <-rotated:
					mu.Lock()
					seen = append(seen, local...)
					mu.Unlock()
					return
				default:
				}
				if useGet {
					sess, err := s.GetOrCreate(ctx)
					if err == nil {
						local = append(local, sess)
					}
				} else {
					local = append(local, s.Current())
				}
			}
		}(i%2 == 0)
	}

	for i := 0; i < rotations; i++ {
		next, err := s.Rotate(ctx)
		require.NoError(t, err)
		mu.Lock()
		issued[next.ID] = next
		mu.Unlock()
	}
	close(rotated)
	wg.Wait()

	require.NotEmpty(t, seen)
	for _, sess := range seen {
		want, ok := issued[sess.ID]
		require.True(t, ok, "unknown session id %q", sess.ID)
		require.Equal(t, want.StartTime, sess.StartTime)
		require.Equal(t, want.ConversationCount, sess.ConversationCount)
	}
}
