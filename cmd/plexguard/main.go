// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/api/routes"
	"github.com/autobrr/plexguard/internal/config"
	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/logger"
	"github.com/autobrr/plexguard/internal/services/cache"
	"github.com/autobrr/plexguard/internal/services/events"
	"github.com/autobrr/plexguard/internal/services/notifications"
	"github.com/autobrr/plexguard/internal/services/orchestrator"
	"github.com/autobrr/plexguard/internal/services/plex"
	"github.com/autobrr/plexguard/internal/services/policy"
	"github.com/autobrr/plexguard/internal/services/registry"
	"github.com/autobrr/plexguard/internal/services/scheduler"
	"github.com/autobrr/plexguard/internal/services/settings"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func init() {
	logger.Init()
}

func main() {
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", date).
		Msg("Starting plexguard")

	configPath := flag.String("config", "config.toml", "path to config file")
	listenAddr := flag.String("listen", "", "address to listen on")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		cfg = config.Default()
		log.Warn().Err(err).Msg("Failed to load configuration file, using defaults")
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	db, err := database.InitDBWithConfig(databaseConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	cacheStore, err := cache.InitCache(context.Background(), cacheConfig(cfg))
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, using in-memory cache")
	}
	defer func() {
		if err := cacheStore.Close(); err != nil {
			log.Debug().Err(err).Msg("Cache cleanup completed")
		}
	}()

	settingsStore := settings.NewStore(db, cacheStore)
	bus := events.NewBus()
	notifications.NewRecorder(db, bus)

	plexService := plex.New(settingsStore)
	deviceRegistry := registry.New(db, settingsStore, bus)
	engine := policy.New(db, settingsStore)
	orch := orchestrator.New(db, plexService, deviceRegistry, engine, bus)
	sched := scheduler.New(orch, deviceRegistry, settingsStore)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		sched.Run(loopCtx)
	}()

	if os.Getenv("GIN_MODE") == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if gin.Mode() == gin.DebugMode {
		err = r.SetTrustedProxies(nil)
	} else {
		err = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to set trusted proxies")
	}

	routes.SetupRoutes(r, routes.Deps{
		DB:       db,
		Cache:    cacheStore,
		Settings: settingsStore,
		Plex:     plexService,
		Bus:      bus,
	})

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", cfg.Server.ListenAddr).
			Str("mode", gin.Mode()).
			Str("database", cfg.Database.Type).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopLoop()
	<-loopDone

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}

func databaseConfig(cfg *config.Config) *database.Config {
	dbCfg := &database.Config{
		Driver:   cfg.Database.Type,
		Host:     cfg.Database.Host,
		Port:     strconv.Itoa(cfg.Database.Port),
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		Path:     cfg.Database.Path,
	}
	if dbCfg.Driver == "" {
		dbCfg.Driver = "sqlite"
	}
	if cfg.Database.Port == 0 {
		dbCfg.Port = "5432"
	}
	return dbCfg
}

func cacheConfig(cfg *config.Config) cache.Config {
	addr := ""
	if cfg.Cache.Redis.Host != "" {
		port := cfg.Cache.Redis.Port
		if port == 0 {
			port = 6379
		}
		addr = cfg.Cache.Redis.Host + ":" + strconv.Itoa(port)
	}
	return cache.Config{
		Type:      cfg.Cache.Type,
		RedisAddr: addr,
	}
}
