// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisOpTimeout = 5 * time.Second

// RedisStore backs the Store interface with a Redis server. Rate-limit
// windows are kept in sorted sets keyed by request timestamp.
type RedisStore struct {
	client *redis.Client
	closed bool
	mu     sync.RWMutex
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Get retrieves and unmarshals a value.
func (s *RedisStore) Get(ctx context.Context, key string, value interface{}) error {
	if s.isClosed() {
		return ErrClosed
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	data, err := s.client.Get(opCtx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrKeyNotFound
		}
		return err
	}
	return json.Unmarshal(data, value)
}

// Set marshals and stores a value with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if s.isClosed() {
		return ErrClosed
	}
	if expiration == 0 {
		expiration = DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	return s.client.Set(opCtx, key, data, expiration).Err()
}

// Delete removes a key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s.isClosed() {
		return ErrClosed
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	return s.client.Del(opCtx, key).Err()
}

// Increment records a timestamped entry in a rate-limit window.
func (s *RedisStore) Increment(ctx context.Context, key string, timestamp int64) error {
	if s.isClosed() {
		return ErrClosed
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	member := strconv.FormatInt(timestamp, 10) + ":" + strconv.FormatInt(time.Now().UnixNano(), 10)
	return s.client.ZAdd(opCtx, key, &redis.Z{
		Score:  float64(timestamp),
		Member: member,
	}).Err()
}

// CleanAndCount drops window entries older than windowStart.
func (s *RedisStore) CleanAndCount(ctx context.Context, key string, windowStart int64) error {
	if s.isClosed() {
		return ErrClosed
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	return s.client.ZRemRangeByScore(opCtx, key, "-inf", strconv.FormatInt(windowStart, 10)).Err()
}

// GetCount returns the number of entries in a rate-limit window.
func (s *RedisStore) GetCount(ctx context.Context, key string) (int64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	return s.client.ZCard(opCtx, key).Result()
}

// Expire sets a TTL on a key.
func (s *RedisStore) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if s.isClosed() {
		return ErrClosed
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	return s.client.Expire(opCtx, key, expiration).Err()
}

// Close shuts down the Redis connection.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
