// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/services/plex"
)

const healthCheckTimeout = 5 * time.Second

type HealthHandler struct {
	db   *database.DB
	plex *plex.Service
}

func NewHealthHandler(db *database.DB, plexSvc *plex.Service) *HealthHandler {
	return &HealthHandler{
		db:   db,
		plex: plexSvc,
	}
}

// Check reports the health of the database and the upstream Plex server. An
// unconfigured Plex server is reported, not treated as a failure.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	dbStatus := "healthy"
	if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "unhealthy: " + err.Error()
		status = http.StatusServiceUnavailable
	}

	plexStatus, err := h.plex.CheckHealth(ctx)
	if err != nil {
		if err == plex.ErrNotConfigured {
			plexStatus = "not_configured"
		} else {
			plexStatus = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, gin.H{
		"database": dbStatus,
		"plex":     plexStatus,
	})
}
