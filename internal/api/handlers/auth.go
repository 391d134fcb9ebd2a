// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
	"github.com/autobrr/plexguard/internal/services/cache"
	"github.com/autobrr/plexguard/internal/types"
)

const sessionDuration = 24 * time.Hour

type AuthHandler struct {
	db    *database.DB
	cache cache.Store
}

func NewAuthHandler(db *database.DB, store cache.Store) *AuthHandler {
	return &AuthHandler{
		db:    db,
		cache: store,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}

// RegistrationStatus reports whether registration is allowed (no operator exists yet)
func (h *AuthHandler) RegistrationStatus(c *gin.Context) {
	hasUsers, err := h.db.HasAdminUsers(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to check existing admin users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"registrationEnabled": !hasUsers,
	})
}

// Register creates the first operator account. Once one exists, registration
// is closed.
func (h *AuthHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()

	hasUsers, err := h.db.HasAdminUsers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to check existing admin users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if hasUsers {
		c.JSON(http.StatusForbidden, gin.H{"error": "Registration is disabled. A user already exists."})
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	if err := validatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	user := &models.AdminUser{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashed),
	}

	if err := h.db.CreateAdminUser(ctx, user); err != nil {
		log.Error().Err(err).Msg("failed to create admin user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

// Login verifies credentials and issues a session cookie
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	user, err := h.db.GetAdminUserByUsername(ctx, req.Username)
	if err != nil {
		if err != database.ErrNotFound {
			log.Error().Err(err).Msg("failed to get admin user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := generateSecureToken(32)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate session token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	now := time.Now()
	sessionData := types.SessionData{
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionDuration),
	}

	if err := h.cache.Set(ctx, cache.PrefixSession+token, sessionData, sessionDuration); err != nil {
		log.Error().Err(err).Msg("failed to store session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.SetCookie(
		"session",
		token,
		int(sessionDuration.Seconds()),
		"/",
		"",
		true, // Secure
		true, // HttpOnly
	)

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(sessionDuration.Seconds()),
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
		},
	})
}

// Verify checks the session cookie
func (h *AuthHandler) Verify(c *gin.Context) {
	token, err := c.Cookie("session")
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No session found"})
		return
	}

	var sessionData types.SessionData
	if err := h.cache.Get(c.Request.Context(), cache.PrefixSession+token, &sessionData); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found or expired"})
		return
	}

	if time.Now().After(sessionData.ExpiresAt) {
		_ = h.cache.Delete(c.Request.Context(), cache.PrefixSession+token)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":  sessionData.UserID,
		"username": sessionData.Username,
	})
}

// Logout deletes the session
func (h *AuthHandler) Logout(c *gin.Context) {
	token, err := c.Cookie("session")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "Already logged out"})
		return
	}

	if err := h.cache.Delete(c.Request.Context(), cache.PrefixSession+token); err != nil && err != cache.ErrKeyNotFound {
		log.Error().Err(err).Msg("failed to delete session")
	}

	c.SetCookie("session", "", -1, "/", "", true, true)

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
