// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the main configuration structure
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Cache    CacheConfig    `toml:"cache"`
	Database DatabaseConfig `toml:"database"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr" env:"PLEXGUARD__LISTEN_ADDR"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type  string      `toml:"type" env:"CACHE_TYPE"`
	Redis RedisConfig `toml:"redis"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Host string `toml:"host" env:"REDIS_HOST"`
	Port int    `toml:"port" env:"REDIS_PORT"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Type     string `toml:"type" env:"PLEXGUARD__DB_TYPE"`
	Path     string `toml:"path" env:"PLEXGUARD__DB_PATH"`
	Host     string `toml:"host" env:"PLEXGUARD__DB_HOST"`
	Port     int    `toml:"port" env:"PLEXGUARD__DB_PORT"`
	User     string `toml:"user" env:"PLEXGUARD__DB_USER"`
	Password string `toml:"password" env:"PLEXGUARD__DB_PASSWORD"`
	Name     string `toml:"name" env:"PLEXGUARD__DB_NAME"`
}

// Default returns the configuration used when no config file exists:
// SQLite in ./data and an in-memory cache.
func Default() *Config {
	config := &Config{
		Server:   ServerConfig{ListenAddr: ":8282"},
		Cache:    CacheConfig{Type: "memory"},
		Database: DatabaseConfig{Type: "sqlite", Path: "./data/plexguard.db"},
	}
	loadEnvOverrides(config)
	return config
}

// LoadConfig loads the configuration from a TOML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error decoding config file: %w", err)
	}

	// Override with environment variables if they exist
	loadEnvOverrides(config)

	return config, nil
}

// loadEnvOverrides checks for environment variables and overrides config values
func loadEnvOverrides(config *Config) {
	// Server
	if env := os.Getenv("PLEXGUARD__LISTEN_ADDR"); env != "" {
		config.Server.ListenAddr = env
	}

	// Cache
	if env := os.Getenv("CACHE_TYPE"); env != "" {
		config.Cache.Type = env
	}
	if env := os.Getenv("REDIS_HOST"); env != "" {
		config.Cache.Redis.Host = env
	}
	if env := os.Getenv("REDIS_PORT"); env != "" {
		if port, err := strconv.Atoi(env); err == nil {
			config.Cache.Redis.Port = port
		}
	}

	// Database
	if env := os.Getenv("PLEXGUARD__DB_TYPE"); env != "" {
		config.Database.Type = env
	}
	if env := os.Getenv("PLEXGUARD__DB_PATH"); env != "" {
		config.Database.Path = env
	}
	if env := os.Getenv("PLEXGUARD__DB_HOST"); env != "" {
		config.Database.Host = env
	}
	if env := os.Getenv("PLEXGUARD__DB_PORT"); env != "" {
		if port, err := strconv.Atoi(env); err == nil {
			config.Database.Port = port
		}
	}
	if env := os.Getenv("PLEXGUARD__DB_USER"); env != "" {
		config.Database.User = env
	}
	if env := os.Getenv("PLEXGUARD__DB_PASSWORD"); env != "" {
		config.Database.Password = env
	}
	if env := os.Getenv("PLEXGUARD__DB_NAME"); env != "" {
		config.Database.Name = env
	}
}
