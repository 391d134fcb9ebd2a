// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/services/plex"
	"github.com/autobrr/plexguard/internal/services/settings"
)

type SettingsHandler struct {
	settings *settings.Store
	plex     *plex.Service
}

func NewSettingsHandler(store *settings.Store, plexSvc *plex.Service) *SettingsHandler {
	return &SettingsHandler{
		settings: store,
		plex:     plexSvc,
	}
}

// GetSettings exports every non-private setting with its effective value
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Export(c.Request.Context()))
}

// UpdateSettings writes a batch of settings. The whole batch is validated
// before anything is written so a typo cannot leave half a batch applied.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}
	if len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No settings provided"})
		return
	}

	for key, value := range req {
		if err := settings.Validate(key, value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid setting " + key + ": " + err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	for key, value := range req {
		if err := h.settings.Set(ctx, key, value); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to update setting")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update " + key})
			return
		}
	}

	log.Info().Int("count", len(req)).Msg("Settings updated")
	c.JSON(http.StatusOK, gin.H{"message": "Settings updated"})
}

// TestConnection verifies the configured Plex server is reachable
func (h *SettingsHandler) TestConnection(c *gin.Context) {
	machineID, err := h.plex.ServerIdentity(c.Request.Context())
	if err != nil {
		if err == plex.ErrNotConfigured {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Plex server is not configured"})
			return
		}
		log.Error().Err(err).Msg("Plex connection test failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "Connection successful",
		"machineIdentifier": machineID,
	})
}
