// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
)

type UsersHandler struct {
	db *database.DB
}

func NewUsersHandler(db *database.DB) *UsersHandler {
	return &UsersHandler{db: db}
}

// ListUsers returns every user the registry has seen, with their policy
// overrides
func (h *UsersHandler) ListUsers(c *gin.Context) {
	prefs, err := h.db.ListUserPreferences(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list user preferences")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, prefs)
}

// GetUser returns one user's preference row
func (h *UsersHandler) GetUser(c *gin.Context) {
	userID := c.Param("userId")

	pref, err := h.db.GetUserPreference(c.Request.Context(), userID)
	if err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user preference")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, pref)
}

type defaultBlockRequest struct {
	// Null clears the override and falls back to the global setting.
	DefaultBlock *bool `json:"defaultBlock"`
}

// SetDefaultBlock sets or clears a user's default-block override
func (h *UsersHandler) SetDefaultBlock(c *gin.Context) {
	userID := c.Param("userId")

	var req defaultBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	if err := h.db.SetUserDefaultBlock(c.Request.Context(), userID, req.DefaultBlock); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to set default block")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Default block updated"})
}

type ipPolicyRequest struct {
	NetworkPolicy  models.NetworkPolicy  `json:"networkPolicy" binding:"required"`
	IPAccessPolicy models.IPAccessPolicy `json:"ipAccessPolicy" binding:"required"`
	AllowedIPs     []string              `json:"allowedIps"`
}

// validateAllowedIPs rejects entries that are neither an IP nor a CIDR range
func validateAllowedIPs(entries []string) error {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return err
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			return &net.ParseError{Type: "IP address", Text: entry}
		}
	}
	return nil
}

// SetIPPolicy sets a user's network-location policy and IP allow-list
func (h *UsersHandler) SetIPPolicy(c *gin.Context) {
	userID := c.Param("userId")

	var req ipPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	switch req.NetworkPolicy {
	case models.NetworkPolicyBoth, models.NetworkPolicyLAN, models.NetworkPolicyWAN:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid network policy"})
		return
	}
	switch req.IPAccessPolicy {
	case models.IPAccessPolicyAll, models.IPAccessPolicyRestricted:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid IP access policy"})
		return
	}
	if err := validateAllowedIPs(req.AllowedIPs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid allow-list entry: " + err.Error()})
		return
	}

	if err := h.db.SetUserIPPolicy(c.Request.Context(), userID, req.NetworkPolicy, req.IPAccessPolicy, req.AllowedIPs); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to set IP policy")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "IP policy updated"})
}

type concurrentLimitRequest struct {
	// Null clears the override; zero means unlimited.
	Limit *int `json:"limit"`
}

// SetConcurrentLimit sets or clears a user's stream-count override
func (h *UsersHandler) SetConcurrentLimit(c *gin.Context) {
	userID := c.Param("userId")

	var req concurrentLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}
	if req.Limit != nil && *req.Limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must not be negative"})
		return
	}

	if err := h.db.SetUserConcurrentLimit(c.Request.Context(), userID, req.Limit); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to set concurrent limit")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Concurrent limit updated"})
}

type hiddenRequest struct {
	Hidden *bool `json:"hidden" binding:"required"`
}

// SetHidden hides or unhides a user in dashboard listings
func (h *UsersHandler) SetHidden(c *gin.Context) {
	userID := c.Param("userId")

	var req hiddenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Hidden == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	if err := h.db.SetUserHidden(c.Request.Context(), userID, *req.Hidden); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to set user hidden")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Visibility updated"})
}
