// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
)

type DevicesHandler struct {
	db *database.DB
}

func NewDevicesHandler(db *database.DB) *DevicesHandler {
	return &DevicesHandler{db: db}
}

func deviceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device id"})
		return 0, false
	}
	return id, true
}

// ListDevices returns all tracked devices, optionally scoped to one user
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		devices []models.Device
		err     error
	)
	if userID := c.Query("userId"); userID != "" {
		devices, err = h.db.ListDevicesForUser(ctx, userID)
	} else {
		devices, err = h.db.ListDevices(ctx)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to list devices")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, devices)
}

// GetDevice returns one device by id
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}

	device, err := h.db.GetDeviceByID(c.Request.Context(), id)
	if err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
			return
		}
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to get device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, device)
}

type statusRequest struct {
	Status models.DeviceStatus `json:"status" binding:"required"`
}

// UpdateStatus approves or rejects a device
func (h *DevicesHandler) UpdateStatus(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	switch req.Status {
	case models.DeviceStatusApproved, models.DeviceStatusRejected, models.DeviceStatusPending:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device status"})
		return
	}

	if err := h.db.UpdateDeviceStatus(c.Request.Context(), id, req.Status); err != nil {
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to update device status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	log.Info().Int64("device_id", id).Str("status", string(req.Status)).Msg("Device status updated")
	c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// Rename sets a device's display name
func (h *DevicesHandler) Rename(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}

	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	if err := h.db.RenameDevice(c.Request.Context(), id, req.Name); err != nil {
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to rename device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device renamed"})
}

type exclusionRequest struct {
	Exclude *bool `json:"exclude" binding:"required"`
}

// SetExclusion toggles whether the device counts against stream limits
func (h *DevicesHandler) SetExclusion(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}

	var req exclusionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Exclude == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	if err := h.db.SetDeviceExclusion(c.Request.Context(), id, *req.Exclude); err != nil {
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to set device exclusion")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Exclusion updated"})
}

type tempAccessRequest struct {
	Minutes int  `json:"minutes" binding:"required"`
	Bypass  bool `json:"bypass"`
}

// GrantTempAccess gives a device a timed access window. With bypass set, the
// window also overrides IP and time restrictions.
func (h *DevicesHandler) GrantTempAccess(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}

	var req tempAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must be a positive integer"})
		return
	}

	now := time.Now()
	until := now.Add(time.Duration(req.Minutes) * time.Minute)

	if err := h.db.GrantTempAccess(c.Request.Context(), id, until, now, req.Minutes, req.Bypass); err != nil {
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to grant temporary access")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	log.Info().
		Int64("device_id", id).
		Int("minutes", req.Minutes).
		Bool("bypass", req.Bypass).
		Msg("Temporary access granted")

	c.JSON(http.StatusOK, gin.H{
		"message":         "Temporary access granted",
		"tempAccessUntil": until,
	})
}

// RevokeTempAccess clears a device's temporary access grant
func (h *DevicesHandler) RevokeTempAccess(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}

	if err := h.db.RevokeTempAccess(c.Request.Context(), id); err != nil {
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to revoke temporary access")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Temporary access revoked"})
}

// MarkRequestRead acknowledges a device's user note
func (h *DevicesHandler) MarkRequestRead(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}

	if err := h.db.MarkDeviceRequestRead(c.Request.Context(), id, time.Now()); err != nil {
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to mark device request read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Request marked read"})
}

// DeleteDevice removes a device. It reappears as pending if it streams again.
func (h *DevicesHandler) DeleteDevice(c *gin.Context) {
	id, ok := deviceID(c)
	if !ok {
		return
	}

	if err := h.db.DeleteDevice(c.Request.Context(), id); err != nil {
		log.Error().Err(err).Int64("device_id", id).Msg("Failed to delete device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	log.Info().Int64("device_id", id).Msg("Device deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Device deleted"})
}
