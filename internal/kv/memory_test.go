package kv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adsledger/internal/kv"
)

func TestMemoryStoreGetAbsent(t *testing.T) {
	st := kv.NewMemoryStore()

	_, err := st.Get(context.Background(), "missing")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestMemoryStoreSetGet(t *testing.T) {
	ctx := context.Background()
	st := kv.NewMemoryStore()

	require.NoError(t, st.Set(ctx, "k", []byte(`{"a":1}`)))

	got, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	st := kv.NewMemoryStore()

	require.NoError(t, st.CompareAndSwap(ctx, "k", nil, []byte("v1")))
	require.ErrorIs(t, st.CompareAndSwap(ctx, "k", nil, []byte("v2")), kv.ErrConflict)
	require.ErrorIs(t, st.CompareAndSwap(ctx, "k", []byte("stale"), []byte("v2")), kv.ErrConflict)
	require.NoError(t, st.CompareAndSwap(ctx, "k", []byte("v1"), []byte("v2")))

	got, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestMemoryStoreCanceledContextIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := kv.NewMemoryStore().Get(ctx, "k")
	require.ErrorIs(t, err, kv.ErrUnavailable)
	require.ErrorIs(t, err, context.Canceled)
}
