// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
	"github.com/autobrr/plexguard/internal/services/cache"
	"github.com/autobrr/plexguard/internal/services/plex"
	"github.com/autobrr/plexguard/internal/types"
)

const sessionsCacheKey = "plex:sessions"

type SessionsHandler struct {
	db    *database.DB
	cache cache.Store
	plex  *plex.Service
	sf    singleflight.Group
}

func NewSessionsHandler(db *database.DB, store cache.Store, plexSvc *plex.Service) *SessionsHandler {
	return &SessionsHandler{
		db:    db,
		cache: store,
		plex:  plexSvc,
	}
}

// enrichedSession is a live session annotated with what the registry knows
// about the device playing it.
type enrichedSession struct {
	types.Session
	DeviceID     int64               `json:"deviceId,omitempty"`
	DeviceStatus models.DeviceStatus `json:"deviceStatus,omitempty"`
	TempAccess   bool                `json:"tempAccess"`
}

// GetSessions returns the current session snapshot, served from cache when
// fresh. Concurrent cache misses collapse into one upstream fetch.
func (h *SessionsHandler) GetSessions(c *gin.Context) {
	ctx := c.Request.Context()

	var snapshot *types.SessionSnapshot
	if err := h.cache.Get(ctx, sessionsCacheKey, &snapshot); err == nil && snapshot != nil {
		c.JSON(http.StatusOK, h.enrich(ctx, snapshot))
		return
	}

	snapshotI, err, _ := h.sf.Do(sessionsCacheKey, func() (interface{}, error) {
		snap, err := h.plex.FetchSessions(context.Background())
		if err != nil {
			return nil, err
		}
		if cacheErr := h.cache.Set(context.Background(), sessionsCacheKey, snap, cache.SessionsTTL); cacheErr != nil {
			log.Warn().Err(cacheErr).Msg("Failed to cache sessions")
		}
		return snap, nil
	})
	if err != nil {
		if err == plex.ErrNotConfigured {
			c.JSON(http.StatusOK, []enrichedSession{})
			return
		}
		log.Error().Err(err).Msg("Failed to fetch sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.enrich(ctx, snapshotI.(*types.SessionSnapshot)))
}

func (h *SessionsHandler) enrich(ctx context.Context, snapshot *types.SessionSnapshot) []enrichedSession {
	enriched := make([]enrichedSession, 0, len(snapshot.Sessions))
	for _, session := range snapshot.Sessions {
		e := enrichedSession{Session: session}

		if session.User.ID != "" && session.Player.MachineID != "" {
			device, err := h.db.GetDevice(ctx, session.User.ID, session.Player.MachineID)
			if err == nil {
				e.DeviceID = device.ID
				e.DeviceStatus = device.Status
				e.TempAccess = device.TempAccessActive(snapshot.FetchedAt)
			} else if err != database.ErrNotFound {
				log.Error().Err(err).
					Str("session_key", session.SessionKey).
					Msg("Failed to look up device for session")
			}
		}

		enriched = append(enriched, e)
	}
	return enriched
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

// TerminateSession manually kills one session by its terminate identifier
func (h *SessionsHandler) TerminateSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}

	var req terminateRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "Stream stopped by the server admin."
	}

	if err := h.plex.TerminateSession(c.Request.Context(), sessionID, req.Reason); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to terminate session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Info().Str("session_id", sessionID).Msg("Session terminated by admin")
	c.JSON(http.StatusOK, gin.H{"message": "Session terminated"})
}

// GetHistory lists recent playback history, newest first
func (h *SessionsHandler) GetHistory(c *gin.Context) {
	limit := uint64(100)
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 32); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	history, err := h.db.ListSessionHistory(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list session history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, history)
}
