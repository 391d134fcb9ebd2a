// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, store.Set(ctx, "key", payload{Name: "alice", Count: 3}, time.Minute))

	var got payload
	require.NoError(t, store.Get(ctx, "key", &got))
	assert.Equal(t, payload{Name: "alice", Count: 3}, got)
}

func TestMemoryStoreMissAndDelete(t *testing.T) {
	store := NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	var got string
	assert.ErrorIs(t, store.Get(ctx, "missing", &got), ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, "key", "value", time.Minute))
	require.NoError(t, store.Delete(ctx, "key"))
	assert.ErrorIs(t, store.Get(ctx, "key", &got), ErrKeyNotFound)
}

func TestMemoryStoreExpiration(t *testing.T) {
	store := NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", "value", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var got string
	assert.ErrorIs(t, store.Get(ctx, "key", &got), ErrKeyNotFound)
}

func TestMemoryStoreRateWindow(t *testing.T) {
	store := NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()
	now := time.Now().Unix()

	require.NoError(t, store.Increment(ctx, "rate", now-120))
	require.NoError(t, store.Increment(ctx, "rate", now-30))
	require.NoError(t, store.Increment(ctx, "rate", now))

	require.NoError(t, store.CleanAndCount(ctx, "rate", now-60))

	count, err := store.GetCount(ctx, "rate")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	var got string
	assert.ErrorIs(t, store.Get(context.Background(), "key", &got), ErrClosed)
	assert.ErrorIs(t, store.Set(context.Background(), "key", "v", time.Minute), ErrClosed)
}
