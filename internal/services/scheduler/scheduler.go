// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scheduler drives the enforcement loop. The poll interval is a
// runtime setting, re-read between ticks so operators can tune cadence
// without a restart.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/services/orchestrator"
	"github.com/autobrr/plexguard/internal/services/registry"
	"github.com/autobrr/plexguard/internal/services/settings"
)

const (
	minInterval     = time.Second
	cleanupInterval = 24 * time.Hour
)

// Settings is the subset of the settings store the scheduler reads.
type Settings interface {
	GetInt(ctx context.Context, key string) int
}

// Scheduler runs enforcement ticks on a configurable cadence and device
// cleanup on a daily one.
type Scheduler struct {
	orchestrator *orchestrator.Orchestrator
	registry     *registry.Registry
	settings     Settings
}

// New creates a scheduler.
func New(orch *orchestrator.Orchestrator, reg *registry.Registry, s Settings) *Scheduler {
	return &Scheduler{
		orchestrator: orch,
		registry:     reg,
		settings:     s,
	}
}

// interval returns the current poll interval, clamped to a safe floor.
func (s *Scheduler) interval(ctx context.Context) time.Duration {
	seconds := s.settings.GetInt(ctx, settings.KeyRefreshInterval)
	d := time.Duration(seconds) * time.Second
	if d < minInterval {
		d = minInterval
	}
	return d
}

// Run blocks until ctx is cancelled. An in-flight tick always completes;
// cancellation is only observed between ticks.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval(ctx)).Msg("Starting enforcement loop")

	s.orchestrator.Tick(ctx)
	lastCleanup := time.Now()

	timer := time.NewTimer(s.interval(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping enforcement loop")
			return
		case <-timer.C:
		}

		s.orchestrator.Tick(ctx)

		if time.Since(lastCleanup) >= cleanupInterval {
			s.registry.CleanupInactive(ctx)
			lastCleanup = time.Now()
		}

		timer.Reset(s.interval(ctx))
	}
}
