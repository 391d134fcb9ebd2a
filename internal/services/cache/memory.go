// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const cleanupInterval = time.Minute

type memoryItem struct {
	value      []byte
	expiration time.Time
}

type rateWindow struct {
	sync.Mutex
	timestamps []int64
	expiresAt  time.Time
}

// MemoryStore implements Store with in-process maps. It is the fallback when
// no Redis server is configured or reachable.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]*memoryItem
	closed bool

	rateMu sync.Mutex
	rates  map[string]*rateWindow

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMemoryStore creates a new in-memory cache instance.
func NewMemoryStore() *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())

	store := &MemoryStore{
		items:  make(map[string]*memoryItem),
		rates:  make(map[string]*rateWindow),
		cancel: cancel,
	}

	store.wg.Add(1)
	go func() {
		defer store.wg.Done()
		store.janitor(ctx)
	}()

	return store
}

func (s *MemoryStore) janitor(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, item := range s.items {
				if now.After(item.expiration) {
					delete(s.items, key)
				}
			}
			s.mu.Unlock()

			s.rateMu.Lock()
			for key, window := range s.rates {
				if !window.expiresAt.IsZero() && now.After(window.expiresAt) {
					delete(s.rates, key)
				}
			}
			s.rateMu.Unlock()
		}
	}
}

// Get retrieves a value from cache.
func (s *MemoryStore) Get(ctx context.Context, key string, value interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	item, ok := s.items[key]
	if !ok || time.Now().After(item.expiration) {
		return ErrKeyNotFound
	}
	return json.Unmarshal(item.value, value)
}

// Set stores a value in cache.
func (s *MemoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration == 0 {
		expiration = DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.items[key] = &memoryItem{
		value:      data,
		expiration: time.Now().Add(expiration),
	}
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) window(key string) *rateWindow {
	s.rateMu.Lock()
	defer s.rateMu.Unlock()
	w, ok := s.rates[key]
	if !ok {
		w = &rateWindow{}
		s.rates[key] = w
	}
	return w
}

// Increment records a timestamped entry in a rate-limit window.
func (s *MemoryStore) Increment(ctx context.Context, key string, timestamp int64) error {
	w := s.window(key)
	w.Lock()
	defer w.Unlock()
	w.timestamps = append(w.timestamps, timestamp)
	return nil
}

// CleanAndCount drops window entries older than windowStart.
func (s *MemoryStore) CleanAndCount(ctx context.Context, key string, windowStart int64) error {
	w := s.window(key)
	w.Lock()
	defer w.Unlock()

	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts > windowStart {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept
	return nil
}

// GetCount returns the number of entries in a rate-limit window.
func (s *MemoryStore) GetCount(ctx context.Context, key string) (int64, error) {
	w := s.window(key)
	w.Lock()
	defer w.Unlock()
	return int64(len(w.timestamps)), nil
}

// Expire sets a TTL on a rate-limit window or cached key.
func (s *MemoryStore) Expire(ctx context.Context, key string, expiration time.Duration) error {
	deadline := time.Now().Add(expiration)

	s.rateMu.Lock()
	if w, ok := s.rates[key]; ok {
		w.expiresAt = deadline
	}
	s.rateMu.Unlock()

	s.mu.Lock()
	if item, ok := s.items[key]; ok {
		item.expiration = deadline
	}
	s.mu.Unlock()
	return nil
}

// Close stops the janitor and drops all entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.items = make(map[string]*memoryItem)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}
