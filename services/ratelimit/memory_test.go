package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Allow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0.001, 2)

	for i := 0; i < 2; i++ {
		ok, err := store.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, err := store.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted")

	// keys are independent
	ok, err = store.Allow(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_Cleanup(t *testing.T) {
	store := NewMemoryStore(1, 1)
	store.idleTTL = time.Millisecond
	_, _ = store.Allow(context.Background(), "u1")

	time.Sleep(5 * time.Millisecond)
	store.Cleanup()
	assert.Zero(t, store.Len())
}
