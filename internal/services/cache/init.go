// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Config selects the cache backend.
type Config struct {
	// Type is "redis" or "memory". Empty selects redis when an address is
	// reachable, memory otherwise.
	Type      string
	RedisAddr string
}

// ConfigFromEnv builds a cache config from CACHE_TYPE / REDIS_HOST /
// REDIS_PORT.
func ConfigFromEnv() Config {
	cfg := Config{
		Type: strings.ToLower(os.Getenv("CACHE_TYPE")),
	}

	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	if host != "" {
		if port == "" {
			port = "6379"
		}
		cfg.RedisAddr = fmt.Sprintf("%s:%s", host, port)
	}
	return cfg
}

// InitCache creates the configured cache store. When redis is preferred but
// unreachable it falls back to the in-memory store and returns the dial error
// alongside the usable store so callers can log it.
func InitCache(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Type == "memory" || (cfg.Type == "" && cfg.RedisAddr == "") {
		log.Debug().Msg("Using in-memory cache")
		return NewMemoryStore(), nil
	}

	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	store, err := NewRedisStore(ctx, addr)
	if err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Redis unavailable, falling back to in-memory cache")
		return NewMemoryStore(), err
	}

	log.Info().Str("addr", addr).Msg("Connected to Redis cache")
	return store, nil
}
