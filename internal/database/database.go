// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("not found")

// DB represents the database connection
type DB struct {
	*sql.DB
	driver string
	path   string

	squirrel sq.StatementBuilderType
}

// Config holds database configuration
type Config struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Path     string // For SQLite
}

// NewConfig creates a new database configuration from environment variables
func NewConfig() *Config {
	dbType := os.Getenv("PLEXGUARD__DB_TYPE")
	if dbType == "" {
		dbType = "sqlite"
	}

	config := &Config{
		Driver: dbType,
	}

	if dbType == "postgres" {
		config.Host = getEnv("PLEXGUARD__DB_HOST", "localhost")
		config.Port = getEnv("PLEXGUARD__DB_PORT", "5432")
		config.User = getEnv("PLEXGUARD__DB_USER", "plexguard")
		config.Password = getEnv("PLEXGUARD__DB_PASSWORD", "plexguard")
		config.DBName = getEnv("PLEXGUARD__DB_NAME", "plexguard")
	} else {
		config.Path = getEnv("PLEXGUARD__DB_PATH", "./data/plexguard.db")
	}

	return config
}

// InitDB initializes the database connection and creates the schema
func InitDB(dbPath string) (*DB, error) {
	config := NewConfig()
	if config.Driver == "sqlite" && dbPath != "" {
		config.Path = dbPath
	}
	return InitDBWithConfig(config)
}

// InitDBWithConfig initializes the database with the provided configuration
func InitDBWithConfig(config *Config) (*DB, error) {
	var (
		database *sql.DB
		err      error
	)

	maxRetries := 5
	baseDelay := time.Second

	if config.Driver == "postgres" {
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.DBName)
		log.Debug().
			Str("host", config.Host).
			Str("port", config.Port).
			Str("database", config.DBName).
			Msg("Initializing PostgreSQL database")

		for attempt := 1; attempt <= maxRetries; attempt++ {
			database, err = sql.Open("postgres", dsn)
			if err == nil {
				err = database.Ping()
				if err == nil {
					break
				}
			}

			if attempt == maxRetries {
				return nil, errors.Wrapf(err, "failed to connect to database after %d attempts", maxRetries)
			}

			delay := time.Duration(attempt) * baseDelay
			log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying database connection")
			time.Sleep(delay)
		}
	} else {
		dbDir := filepath.Dir(config.Path)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, err
		}

		database, err = sql.Open("sqlite", config.Path)
		if err != nil {
			return nil, errors.Wrap(err, "error opening database")
		}

		if err := database.Ping(); err != nil {
			return nil, errors.Wrap(err, "error creating database file")
		}

		if err := os.Chmod(config.Path, 0640); err != nil {
			return nil, errors.Wrap(err, "error setting database file permissions")
		}
		log.Debug().
			Str("path", config.Path).
			Msg("Initializing SQLite database")
	}

	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(25)
	database.SetConnMaxLifetime(5 * time.Minute)

	log.Info().
		Str("driver", config.Driver).
		Msg("Successfully connected to database")

	db := &DB{
		DB:     database,
		driver: config.Driver,
		path:   config.Path,
		// dollar placeholders work for both sqlite and postgres
		squirrel: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}

	if err := db.initSchema(); err != nil {
		return nil, errors.Wrap(err, "error initializing schema")
	}

	return db, nil
}

// Path returns the database file path (for SQLite)
func (db *DB) Path() string {
	return db.path
}

// initSchema creates the tables read and written by the core.
func (db *DB) initSchema() error {
	var autoIncrement string
	if db.driver == "postgres" {
		autoIncrement = "SERIAL"
	} else {
		autoIncrement = "INTEGER"
	}

	statements := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS devices (
			id %s PRIMARY KEY,
			user_id TEXT NOT NULL,
			device_identifier TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			platform TEXT NOT NULL DEFAULT '',
			product TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			exclude_from_concurrent BOOLEAN NOT NULL DEFAULT FALSE,
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL,
			last_ip TEXT NOT NULL DEFAULT '',
			session_count INTEGER NOT NULL DEFAULT 0,
			temp_access_until TIMESTAMP,
			temp_access_granted_at TIMESTAMP,
			temp_access_minutes INTEGER,
			temp_access_bypass BOOLEAN NOT NULL DEFAULT FALSE,
			request_description TEXT,
			request_submitted_at TIMESTAMP,
			request_read_at TIMESTAMP,
			UNIQUE (user_id, device_identifier)
		)`, autoIncrement),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS user_preferences (
			id %s PRIMARY KEY,
			user_id TEXT UNIQUE NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			hidden BOOLEAN NOT NULL DEFAULT FALSE,
			default_block BOOLEAN,
			network_policy TEXT NOT NULL DEFAULT 'both',
			ip_access_policy TEXT NOT NULL DEFAULT 'all',
			allowed_ips TEXT NOT NULL DEFAULT '[]',
			concurrent_stream_limit INTEGER
		)`, autoIncrement),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS time_rules (
			id %s PRIMARY KEY,
			user_id TEXT NOT NULL,
			device_identifier TEXT NOT NULL DEFAULT '',
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			rule_name TEXT NOT NULL DEFAULT ''
		)`, autoIncrement),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS session_history (
			id %s PRIMARY KEY,
			session_key TEXT NOT NULL,
			user_id TEXT NOT NULL,
			device_id INTEGER NOT NULL DEFAULT 0,
			device_address TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			grandparent_title TEXT NOT NULL DEFAULT '',
			media_type TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		)`, autoIncrement),
		`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'string'
		)`,
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS admin_users (
			id %s PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, autoIncrement),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS notifications (
			id %s PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			read_at TIMESTAMP
		)`, autoIncrement),
		`CREATE INDEX IF NOT EXISTS idx_devices_user ON devices (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_session_history_key ON session_history (session_key)`,
		`CREATE INDEX IF NOT EXISTS idx_session_history_open ON session_history (ended_at)`,
		`CREATE INDEX IF NOT EXISTS idx_time_rules_user ON time_rules (user_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
