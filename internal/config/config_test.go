// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8282", cfg.Server.ListenAddr)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "./data/plexguard.db", cfg.Database.Path)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
listen_addr = ":9090"

[cache]
type = "redis"

[cache.redis]
host = "localhost"
port = 6380

[database]
type = "postgres"
host = "db.local"
port = 5433
user = "plexguard"
password = "secret"
name = "plexguard"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "localhost", cfg.Cache.Redis.Host)
	assert.Equal(t, 6380, cfg.Cache.Redis.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 5433, cfg.Database.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLEXGUARD__LISTEN_ADDR", ":7070")
	t.Setenv("PLEXGUARD__DB_TYPE", "postgres")
	t.Setenv("PLEXGUARD__DB_PORT", "5433")

	cfg := Default()

	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 5433, cfg.Database.Port)
}
