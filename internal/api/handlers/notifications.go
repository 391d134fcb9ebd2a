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
)

type NotificationsHandler struct {
	db *database.DB
}

func NewNotificationsHandler(db *database.DB) *NotificationsHandler {
	return &NotificationsHandler{db: db}
}

// ListNotifications returns recent notifications, newest first
func (h *NotificationsHandler) ListNotifications(c *gin.Context) {
	limit := uint64(50)
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 32); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	notifications, err := h.db.ListNotifications(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, notifications)
}

// MarkRead acknowledges one notification
func (h *NotificationsHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification id"})
		return
	}

	if err := h.db.MarkNotificationRead(c.Request.Context(), id, time.Now()); err != nil {
		log.Error().Err(err).Int64("notification_id", id).Msg("Failed to mark notification read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked read"})
}
