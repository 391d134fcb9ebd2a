// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
)

type TimeRulesHandler struct {
	db *database.DB
}

func NewTimeRulesHandler(db *database.DB) *TimeRulesHandler {
	return &TimeRulesHandler{db: db}
}

type timeRuleRequest struct {
	UserID           string `json:"userId" binding:"required"`
	DeviceIdentifier string `json:"deviceIdentifier"`
	DayOfWeek        *int   `json:"dayOfWeek" binding:"required"`
	StartTime        string `json:"startTime" binding:"required"`
	EndTime          string `json:"endTime" binding:"required"`
	Enabled          *bool  `json:"enabled"`
	RuleName         string `json:"ruleName"`
}

func (r *timeRuleRequest) validate() error {
	if r.DayOfWeek == nil || *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
		return fmt.Errorf("dayOfWeek must be 0 (Sunday) through 6 (Saturday)")
	}
	for _, clock := range []string{r.StartTime, r.EndTime} {
		if _, err := time.Parse("15:04", clock); err != nil {
			return fmt.Errorf("invalid time %q, want HH:MM", clock)
		}
	}
	return nil
}

func (r *timeRuleRequest) toModel() *models.TimeRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &models.TimeRule{
		UserID:           r.UserID,
		DeviceIdentifier: r.DeviceIdentifier,
		DayOfWeek:        *r.DayOfWeek,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		Enabled:          enabled,
		RuleName:         r.RuleName,
	}
}

// ListRules returns time rules, optionally scoped to one user
func (h *TimeRulesHandler) ListRules(c *gin.Context) {
	rules, err := h.db.ListTimeRules(c.Request.Context(), c.Query("userId"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list time rules")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, rules)
}

// CreateRule adds a weekly block window
func (h *TimeRulesHandler) CreateRule(c *gin.Context) {
	var req timeRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := req.toModel()
	if err := h.db.CreateTimeRule(c.Request.Context(), rule); err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to create time rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// UpdateRule rewrites an existing rule. The rule must belong to the user in
// the request body.
func (h *TimeRulesHandler) UpdateRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule id"})
		return
	}

	var req timeRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := req.toModel()
	rule.ID = id
	if err := h.db.UpdateTimeRule(c.Request.Context(), rule); err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		log.Error().Err(err).Int64("rule_id", id).Msg("Failed to update time rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteRule removes a rule
func (h *TimeRulesHandler) DeleteRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule id"})
		return
	}

	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	if err := h.db.DeleteTimeRule(c.Request.Context(), id, userID); err != nil {
		if err == database.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		log.Error().Err(err).Int64("rule_id", id).Msg("Failed to delete time rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted"})
}
