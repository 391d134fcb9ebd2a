// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/services/cache"
	"github.com/autobrr/plexguard/internal/types"
)

// Custom context keys
type contextKey string

const (
	SessionContextKey contextKey = "session_data"
	UserIDKey         contextKey = "user_id"

	authTimeout = 5 * time.Second
)

type AuthMiddleware struct {
	cache cache.Store
}

func NewAuthMiddleware(cache cache.Store) *AuthMiddleware {
	return &AuthMiddleware{
		cache: cache,
	}
}

// sessionToken extracts the admin session token from the cookie or, as a
// fallback, a bearer Authorization header.
func sessionToken(c *gin.Context) string {
	if token, err := c.Cookie("session"); err == nil && token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

// RequireAuth middleware checks for a valid admin session
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), authTimeout)
		defer cancel()

		token := sessionToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authentication provided"})
			c.Abort()
			return
		}

		var sessionData types.SessionData
		if err := m.cache.Get(ctx, cache.PrefixSession+token, &sessionData); err != nil {
			if ctx.Err() != nil {
				log.Error().Err(ctx.Err()).Msg("Context cancelled while checking session")
				c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Authentication check timed out"})
				c.Abort()
				return
			}
			// Only log if it's not a "key not found" error, as that's expected
			if err != cache.ErrKeyNotFound {
				log.Error().Err(err).Msg("error checking session in cache")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			c.Abort()
			return
		}

		newCtx := context.WithValue(c.Request.Context(), SessionContextKey, sessionData)
		newCtx = context.WithValue(newCtx, UserIDKey, sessionData.UserID)
		c.Request = c.Request.WithContext(newCtx)

		c.Set("session", sessionData)
		c.Set("user_id", sessionData.UserID)
		c.Set("username", sessionData.Username)

		c.Next()
	}
}

// RequirePortalAuth checks for a valid portal session and scopes the request
// to the Plex user it belongs to. Portal handlers must read the user id from
// the gin context, never from request parameters.
func (m *AuthMiddleware) RequirePortalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), authTimeout)
		defer cancel()

		token, err := c.Cookie("portal_session")
		if err != nil || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authentication provided"})
			c.Abort()
			return
		}

		var session types.PortalSession
		if err := m.cache.Get(ctx, cache.PrefixPortalSession+token, &session); err != nil {
			if err != cache.ErrKeyNotFound {
				log.Error().Err(err).Msg("error checking portal session in cache")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			c.Abort()
			return
		}

		if session.PlexUserID == "" || time.Now().After(session.ExpiresAt) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			c.Abort()
			return
		}

		c.Set("plex_user_id", session.PlexUserID)
		c.Set("plex_username", session.Username)

		c.Next()
	}
}
