// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autobrr/plexguard/internal/api/handlers"
	"github.com/autobrr/plexguard/internal/api/middleware"
	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/services/cache"
	"github.com/autobrr/plexguard/internal/services/events"
	"github.com/autobrr/plexguard/internal/services/plex"
	"github.com/autobrr/plexguard/internal/services/settings"
)

// Deps carries the shared services the HTTP surface is built on.
type Deps struct {
	DB       *database.DB
	Cache    cache.Store
	Settings *settings.Store
	Plex     *plex.Service
	Bus      *events.Bus
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(r *gin.Engine, deps Deps) {
	gin.SetMode(gin.ReleaseMode)

	// Use custom logger instead of default Gin logger
	r.Use(middleware.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.SetupCORS())
	r.Use(middleware.Secure(nil))

	apiRateLimiter := middleware.NewRateLimiter(deps.Cache, time.Minute, 120, "api:")    // 120 requests per minute for API
	authRateLimiter := middleware.NewRateLimiter(deps.Cache, time.Minute, 30, "auth:")   // 30 auth requests per minute
	portalRateLimiter := middleware.NewRateLimiter(deps.Cache, time.Minute, 60, "portal:") // 60 portal requests per minute

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Cache)
	sessionsHandler := handlers.NewSessionsHandler(deps.DB, deps.Cache, deps.Plex)
	devicesHandler := handlers.NewDevicesHandler(deps.DB)
	usersHandler := handlers.NewUsersHandler(deps.DB)
	rulesHandler := handlers.NewTimeRulesHandler(deps.DB)
	settingsHandler := handlers.NewSettingsHandler(deps.Settings, deps.Plex)
	notificationsHandler := handlers.NewNotificationsHandler(deps.DB)
	eventsHandler := handlers.NewEventsHandler(deps.Bus)
	portalHandler := handlers.NewPortalHandler(deps.DB, deps.Bus, deps.Settings)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Plex)

	authMiddleware := middleware.NewAuthMiddleware(deps.Cache)

	// Public routes (no auth required)
	public := r.Group("")
	{
		public.GET("/health", healthHandler.Check)

		auth := public.Group("/api/auth")
		auth.Use(authRateLimiter.RateLimit())
		{
			auth.GET("/registration-status", authHandler.RegistrationStatus)
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/verify", authHandler.Verify)
		}
	}

	// Admin API, behind operator sessions
	api := r.Group("/api")
	api.Use(authMiddleware.RequireAuth())
	api.Use(apiRateLimiter.RateLimit())
	{
		api.GET("/sessions", sessionsHandler.GetSessions)
		api.POST("/sessions/:sessionId/terminate", sessionsHandler.TerminateSession)
		api.GET("/history", sessionsHandler.GetHistory)

		devices := api.Group("/devices")
		{
			devices.GET("", devicesHandler.ListDevices)
			devices.GET("/:id", devicesHandler.GetDevice)
			devices.PATCH("/:id/status", devicesHandler.UpdateStatus)
			devices.PATCH("/:id/name", devicesHandler.Rename)
			devices.PATCH("/:id/exclusion", devicesHandler.SetExclusion)
			devices.POST("/:id/temp-access", devicesHandler.GrantTempAccess)
			devices.DELETE("/:id/temp-access", devicesHandler.RevokeTempAccess)
			devices.POST("/:id/request/read", devicesHandler.MarkRequestRead)
			devices.DELETE("/:id", devicesHandler.DeleteDevice)
		}

		users := api.Group("/users")
		{
			users.GET("", usersHandler.ListUsers)
			users.GET("/:userId", usersHandler.GetUser)
			users.PATCH("/:userId/default-block", usersHandler.SetDefaultBlock)
			users.PATCH("/:userId/ip-policy", usersHandler.SetIPPolicy)
			users.PATCH("/:userId/concurrent-limit", usersHandler.SetConcurrentLimit)
			users.PATCH("/:userId/hidden", usersHandler.SetHidden)
		}

		rules := api.Group("/rules")
		{
			rules.GET("", rulesHandler.ListRules)
			rules.POST("", rulesHandler.CreateRule)
			rules.PUT("/:id", rulesHandler.UpdateRule)
			rules.DELETE("/:id", rulesHandler.DeleteRule)
		}

		apiSettings := api.Group("/settings")
		{
			apiSettings.GET("", settingsHandler.GetSettings)
			apiSettings.PATCH("", settingsHandler.UpdateSettings)
			apiSettings.GET("/plex/test", settingsHandler.TestConnection)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", notificationsHandler.ListNotifications)
			notifications.POST("/:id/read", notificationsHandler.MarkRead)
		}

		api.GET("/events", eventsHandler.Stream)
	}

	// Self-service portal, scoped to the authenticated Plex user
	portal := r.Group("/api/portal")
	portal.Use(authMiddleware.RequirePortalAuth())
	portal.Use(portalRateLimiter.RateLimit())
	{
		portal.GET("/devices", portalHandler.GetDevices)
		portal.PATCH("/devices/:id/name", portalHandler.RenameDevice)
		portal.POST("/devices/:id/request", portalHandler.SubmitNote)
		portal.GET("/rules", portalHandler.GetRules)
		portal.GET("/settings", portalHandler.GetSettings)
		portal.GET("/profile", portalHandler.GetProfile)
	}
}
