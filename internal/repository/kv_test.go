package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, KeySessionID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set(ctx, KeySessionID, "first"))
	require.NoError(t, kv.Set(ctx, KeySessionID, "second"))
	v, ok, err := kv.Get(ctx, KeySessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", v)

	require.NoError(t, kv.Delete(ctx, KeySessionID))
	require.NoError(t, kv.Delete(ctx, KeySessionID))
	_, ok, err = kv.Get(ctx, KeySessionID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestSQLiteKV(t *testing.T) {
	kv, err := NewSQLiteKV(":memory:")
	require.NoError(t, err)
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestNewSQLiteKV_EmptyDSN(t *testing.T) {
	_, err := NewSQLiteKV(" ")
	require.Error(t, err)
}
