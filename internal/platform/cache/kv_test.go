package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKVSetGetDelete(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k1", "v1", 0))
	val, err := kv.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)

	// overwrite, not append
	require.NoError(t, kv.Set(ctx, "k1", "v2", 0))
	val, _ = kv.Get(ctx, "k1")
	assert.Equal(t, "v2", val)

	require.NoError(t, kv.Delete(ctx, "k1"))
	_, err = kv.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryKVTTL(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	require.NoError(t, kv.Set(ctx, "short", "v", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, err := kv.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryKVScanKeys(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, "draft:abc:u1:s1", "v", 0))
	require.NoError(t, kv.Set(ctx, "draft:abc:u1:s2", "v", 0))
	require.NoError(t, kv.Set(ctx, "draft:xyz:u1:s1", "v", 0))

	keys, err := kv.ScanKeys(ctx, "draft:abc:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
