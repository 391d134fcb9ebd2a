// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package settings is the typed read-through store for runtime configuration.
// Values live in the settings table; reads go through the cache so the poll
// loop does not hit the database for every key on every tick. Writes
// invalidate the cached entry, so runtime changes take effect on the next
// read.
package settings

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
	"github.com/autobrr/plexguard/internal/services/cache"
)

var (
	ErrUnknownKey   = errors.New("settings: unknown key")
	ErrInvalidValue = errors.New("settings: invalid value for key type")
)

// Store reads and writes typed settings.
type Store struct {
	db    *database.DB
	cache cache.Store
}

// NewStore creates a settings store on top of the database and cache.
func NewStore(db *database.DB, cacheStore cache.Store) *Store {
	return &Store{db: db, cache: cacheStore}
}

// raw returns the string value for a key, falling back to the catalog
// default when the table has no row.
func (s *Store) raw(ctx context.Context, key string) (string, error) {
	spec, ok := Catalog[key]
	if !ok {
		return "", errors.Wrap(ErrUnknownKey, key)
	}

	cacheKey := cache.PrefixSettings + key
	var cached string
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	}

	setting, err := s.db.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return spec.Default, nil
		}
		return spec.Default, err
	}

	if err := s.cache.Set(ctx, cacheKey, setting.Value, cache.SettingsTTL); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Failed to cache setting")
	}
	return setting.Value, nil
}

// GetString returns a string setting, or its default on any error.
func (s *Store) GetString(ctx context.Context, key string) string {
	value, err := s.raw(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to read setting")
	}
	return value
}

// GetBool returns a bool setting, or its default on any error.
func (s *Store) GetBool(ctx context.Context, key string) bool {
	value, err := s.raw(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to read setting")
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		parsed, _ = strconv.ParseBool(Catalog[key].Default)
	}
	return parsed
}

// GetInt returns an int setting, or its default on any error.
func (s *Store) GetInt(ctx context.Context, key string) int {
	value, err := s.raw(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to read setting")
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		parsed, _ = strconv.Atoi(Catalog[key].Default)
	}
	return parsed
}

// GetJSON unmarshals a json setting into the given value.
func (s *Store) GetJSON(ctx context.Context, key string, value interface{}) error {
	raw, err := s.raw(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), value)
}

// Validate checks a value against the declared kind of its key without
// persisting anything, so callers can vet a whole batch before writing.
func Validate(key, value string) error {
	spec, ok := Catalog[key]
	if !ok {
		return errors.Wrap(ErrUnknownKey, key)
	}

	switch spec.Kind {
	case KindBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return errors.Wrap(ErrInvalidValue, key)
		}
	case KindInt:
		if _, err := strconv.Atoi(value); err != nil {
			return errors.Wrap(ErrInvalidValue, key)
		}
	case KindJSON:
		if !json.Valid([]byte(value)) {
			return errors.Wrap(ErrInvalidValue, key)
		}
	}
	return nil
}

// Set validates a value against the key's declared kind, persists it, and
// invalidates the cache entry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}

	setting := &models.Setting{Key: key, Value: value, Type: string(Catalog[key].Kind)}
	if err := s.db.UpsertSetting(ctx, setting); err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, cache.PrefixSettings+key); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Failed to invalidate setting cache")
	}

	log.Info().Str("key", key).Msg("Setting updated")
	return nil
}

// Export returns every non-private key with its effective value, for the
// admin settings endpoint.
func (s *Store) Export(ctx context.Context) map[string]models.Setting {
	out := make(map[string]models.Setting, len(Catalog))
	for key, spec := range Catalog {
		if spec.Private {
			continue
		}
		value, err := s.raw(ctx, key)
		if err != nil {
			value = spec.Default
		}
		out[key] = models.Setting{Key: key, Value: value, Type: string(spec.Kind)}
	}
	return out
}
