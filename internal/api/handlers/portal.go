// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/services/events"
	"github.com/autobrr/plexguard/internal/services/settings"
)

const maxNoteLength = 500

// PortalHandler serves the self-service user portal. Every operation is
// scoped to the Plex user id the auth middleware put in the context; request
// parameters never choose the user.
type PortalHandler struct {
	db       *database.DB
	bus      *events.Bus
	settings *settings.Store
}

func NewPortalHandler(db *database.DB, bus *events.Bus, store *settings.Store) *PortalHandler {
	return &PortalHandler{
		db:       db,
		bus:      bus,
		settings: store,
	}
}

func portalUserID(c *gin.Context) string {
	return c.GetString("plex_user_id")
}

// GetDevices lists the calling user's own devices
func (h *PortalHandler) GetDevices(c *gin.Context) {
	userID := portalUserID(c)

	devices, err := h.db.ListDevicesForUser(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list portal devices")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, devices)
}

// GetRules lists the calling user's own time rules
func (h *PortalHandler) GetRules(c *gin.Context) {
	userID := portalUserID(c)

	rules, err := h.db.ListTimeRules(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list portal time rules")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, rules)
}

// GetProfile returns the calling user's preference row
func (h *PortalHandler) GetProfile(c *gin.Context) {
	userID := portalUserID(c)

	pref, err := h.db.GetUserPreference(c.Request.Context(), userID)
	if err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get portal profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, pref)
}

// GetSettings returns the policy view that applies to the calling user:
// their preference row with the global fallbacks already resolved.
func (h *PortalHandler) GetSettings(c *gin.Context) {
	ctx := c.Request.Context()
	userID := portalUserID(c)

	effectiveLimit := h.settings.GetInt(ctx, settings.KeyConcurrentStreamLimit)
	networkPolicy := "both"
	ipAccessPolicy := "all"

	pref, err := h.db.GetUserPreference(ctx, userID)
	if err != nil && err != database.ErrNotFound {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get portal settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if pref != nil {
		if pref.ConcurrentStreamLimit != nil {
			effectiveLimit = *pref.ConcurrentStreamLimit
		}
		networkPolicy = string(pref.NetworkPolicy)
		ipAccessPolicy = string(pref.IPAccessPolicy)
	}

	c.JSON(http.StatusOK, gin.H{
		"networkPolicy":         networkPolicy,
		"ipAccessPolicy":        ipAccessPolicy,
		"concurrentStreamLimit": effectiveLimit,
	})
}

// ownDevice loads a device and verifies it belongs to the calling user.
func (h *PortalHandler) ownDevice(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device id"})
		return 0, false
	}

	device, err := h.db.GetDeviceByID(c.Request.Context(), id)
	if err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
			return 0, false
		}
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to get portal device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return 0, false
	}

	if device.UserID != portalUserID(c) {
		// Do not reveal that the device exists.
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return 0, false
	}

	return id, true
}

type portalRenameRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameDevice lets a user rename their own device
func (h *PortalHandler) RenameDevice(c *gin.Context) {
	id, ok := h.ownDevice(c)
	if !ok {
		return
	}

	var req portalRenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	if err := h.db.RenameDevice(c.Request.Context(), id, req.Name); err != nil {
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to rename portal device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device renamed"})
}

type noteRequest struct {
	Description string `json:"description" binding:"required"`
}

// SubmitNote files the one-time access note for a device. A device only ever
// carries one note; a second submission is rejected.
func (h *PortalHandler) SubmitNote(c *gin.Context) {
	id, ok := h.ownDevice(c)
	if !ok {
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description must not be empty"})
		return
	}
	if utf8.RuneCountInString(description) > maxNoteLength {
		description = string([]rune(description)[:maxNoteLength])
	}

	ctx := c.Request.Context()
	if err := h.db.SubmitDeviceRequest(ctx, id, description, time.Now()); err != nil {
		if err == database.ErrRequestAlreadySubmitted {
			c.JSON(http.StatusConflict, gin.H{"error": "A note was already submitted for this device"})
			return
		}
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to submit device note")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if device, err := h.db.GetDeviceByID(ctx, id); err == nil {
		h.bus.Publish(events.TypeDeviceNoteSubmitted, events.DeviceNoteSubmitted{
			Device:      *device,
			Username:    c.GetString("plex_username"),
			Description: description,
		})
	}

	log.Info().Int64("device_id", id).Msg("Device note submitted")
	c.JSON(http.StatusOK, gin.H{"message": "Note submitted"})
}
