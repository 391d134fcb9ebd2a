// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package plex is the upstream client against the Plex Media Server. It is
// the only component that talks to Plex: it fetches the active session list,
// issues stop-stream commands, and resolves the server machine identifier.
package plex

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/services/core"
	"github.com/autobrr/plexguard/internal/services/resilience"
	"github.com/autobrr/plexguard/internal/services/settings"
	"github.com/autobrr/plexguard/internal/types"
)

const (
	requestTimeout = 10 * time.Second

	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// ErrNotConfigured is returned until PLEX_SERVER_IP and PLEX_TOKEN are set.
var ErrNotConfigured = errors.New("plex: server address or token not configured")

// Service is the upstream Plex client. All wiring comes from the settings
// store so admin changes apply without a restart.
type Service struct {
	core.ServiceCore
	settings *settings.Store
	breaker  *resilience.CircuitBreaker

	mu        sync.Mutex
	machineID string
}

// New creates the upstream client.
func New(store *settings.Store) *Service {
	return &Service{
		ServiceCore: core.ServiceCore{
			Type:        "plex",
			DisplayName: "Plex",
		},
		settings: store,
		breaker:  resilience.NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout),
	}
}

func (s *Service) baseURL(ctx context.Context) (string, string, error) {
	host := s.settings.GetString(ctx, settings.KeyPlexServerIP)
	token := s.settings.GetString(ctx, settings.KeyPlexToken)
	if host == "" || token == "" {
		return "", "", ErrNotConfigured
	}

	port := s.settings.GetString(ctx, settings.KeyPlexServerPort)
	scheme := "http"
	if s.settings.GetBool(ctx, settings.KeyUseSSL) {
		scheme = "https"
	}
	s.SetInsecureSkipVerify(s.settings.GetBool(ctx, settings.KeyIgnoreSSLErrors))

	return fmt.Sprintf("%s://%s:%s", scheme, host, port), token, nil
}

func plexHeaders(token string) map[string]string {
	return map[string]string{
		"Accept":                   "application/json",
		"X-Plex-Token":             token,
		"X-Plex-Client-Identifier": "com.plexguard.app",
		"X-Plex-Product":           "PlexGuard",
		"X-Plex-Version":           "1.0.0",
		"X-Plex-Platform":          "Web",
		"X-Plex-Device":            "Server",
	}
}

// FetchSessions returns the normalized view of active sessions. Entries
// missing a user id or machine identifier are kept in the snapshot (they may
// still be displayed) but flagged unusable for tracking by Normalize at the
// call sites that need identity.
func (s *Service) FetchSessions(ctx context.Context) (*types.SessionSnapshot, error) {
	base, token, err := s.baseURL(ctx)
	if err != nil {
		return nil, err
	}

	// A tripped breaker skips the poll entirely instead of burning the
	// request timeout on every tick.
	if s.breaker.IsOpen() {
		return nil, resilience.ErrCircuitOpen
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := s.MakeRequestWithContext(reqCtx, http.MethodGet, base+"/status/sessions", plexHeaders(token))
	if err != nil {
		s.breaker.RecordFailure()
		return nil, errors.Wrap(err, "failed to fetch sessions")
	}

	body, err := s.ReadBody(resp)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, errors.Wrap(err, "failed to read sessions response")
	}
	s.breaker.RecordSuccess()

	metadata, err := parseSessions(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse sessions response")
	}

	snapshot := &types.SessionSnapshot{
		Sessions:  make([]types.Session, 0, len(metadata)),
		FetchedAt: time.Now(),
	}
	for i := range metadata {
		session, _ := metadata[i].Normalize()
		snapshot.Sessions = append(snapshot.Sessions, session)
	}

	return snapshot, nil
}

// parseSessions handles both response encodings; Plex answers JSON when asked
// but older servers fall back to XML.
func parseSessions(body []byte) ([]types.PlexSessionMetadata, error) {
	var jsonResponse types.PlexSessionsResponse
	if err := json.Unmarshal(body, &jsonResponse); err == nil {
		return jsonResponse.MediaContainer.Metadata, nil
	}

	var container xmlMediaContainer
	if err := xml.Unmarshal(body, &container); err != nil {
		return nil, err
	}
	return container.toMetadata(), nil
}

// TerminateSession instructs Plex to stop a session. The reason string is
// shown to the viewer by the Plex client.
func (s *Service) TerminateSession(ctx context.Context, sessionID, reason string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	base, token, err := s.baseURL(ctx)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/status/sessions/terminate?sessionId=%s&reason=%s",
		base, url.QueryEscape(sessionID), url.QueryEscape(reason))

	// Terminations carry policy weight, so a transient network error gets a
	// few retries before the tick gives up.
	err = resilience.RetryWithBackoff(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		resp, err := s.MakeRequestWithContext(reqCtx, http.MethodGet, endpoint, plexHeaders(token))
		if err != nil {
			return err
		}
		_, err = s.ReadBody(resp)
		return err
	})
	if err != nil {
		return errors.Wrap(err, "failed to terminate session")
	}

	log.Debug().Str("session_id", sessionID).Msg("Terminated upstream session")
	return nil
}

// ServerIdentity returns the Plex server machine identifier, cached after the
// first successful lookup.
func (s *Service) ServerIdentity(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.machineID != "" {
		id := s.machineID
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	base, token, err := s.baseURL(ctx)
	if err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := s.MakeRequestWithContext(reqCtx, http.MethodGet, base+"/identity", plexHeaders(token))
	if err != nil {
		return "", errors.Wrap(err, "failed to fetch identity")
	}

	body, err := s.ReadBody(resp)
	if err != nil {
		return "", errors.Wrap(err, "failed to read identity response")
	}

	var identity types.PlexIdentityResponse
	if err := json.Unmarshal(body, &identity); err != nil {
		var container xmlIdentityContainer
		if xmlErr := xml.Unmarshal(body, &container); xmlErr != nil {
			return "", errors.Wrap(err, "failed to parse identity response")
		}
		identity.MediaContainer.MachineIdentifier = container.MachineIdentifier
	}

	if identity.MediaContainer.MachineIdentifier == "" {
		return "", errors.New("identity response missing machine identifier")
	}

	s.mu.Lock()
	s.machineID = identity.MediaContainer.MachineIdentifier
	s.mu.Unlock()

	return identity.MediaContainer.MachineIdentifier, nil
}

// CheckHealth probes the /identity endpoint.
func (s *Service) CheckHealth(ctx context.Context) (string, error) {
	base, token, err := s.baseURL(ctx)
	if err != nil {
		return "not_configured", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := s.MakeRequestWithContext(reqCtx, http.MethodGet, base+"/identity", plexHeaders(token))
	if err != nil {
		return "offline", err
	}
	if _, err := s.ReadBody(resp); err != nil {
		return "error", err
	}

	return "online", nil
}

// XML wire shapes for servers that ignore the Accept header.

type xmlIdentityContainer struct {
	XMLName           xml.Name `xml:"MediaContainer"`
	MachineIdentifier string   `xml:"machineIdentifier,attr"`
	Version           string   `xml:"version,attr"`
}

type xmlMediaContainer struct {
	XMLName xml.Name       `xml:"MediaContainer"`
	Size    int            `xml:"size,attr"`
	Videos  []xmlSessionEl `xml:"Video"`
	Tracks  []xmlSessionEl `xml:"Track"`
}

type xmlSessionEl struct {
	SessionKey       string `xml:"sessionKey,attr"`
	RatingKey        string `xml:"ratingKey,attr"`
	ParentRatingKey  string `xml:"parentRatingKey,attr"`
	Title            string `xml:"title,attr"`
	GrandparentTitle string `xml:"grandparentTitle,attr"`
	ParentTitle      string `xml:"parentTitle,attr"`
	Year             int    `xml:"year,attr"`
	Duration         int64  `xml:"duration,attr"`
	ViewOffset       int64  `xml:"viewOffset,attr"`
	Type             string `xml:"type,attr"`
	Thumb            string `xml:"thumb,attr"`
	Art              string `xml:"art,attr"`

	User struct {
		ID    string `xml:"id,attr"`
		Title string `xml:"title,attr"`
		Thumb string `xml:"thumb,attr"`
	} `xml:"User"`
	Player struct {
		Address             string `xml:"address,attr"`
		MachineIdentifier   string `xml:"machineIdentifier,attr"`
		Platform            string `xml:"platform,attr"`
		Product             string `xml:"product,attr"`
		RemotePublicAddress string `xml:"remotePublicAddress,attr"`
		State               string `xml:"state,attr"`
		Title               string `xml:"title,attr"`
		Version             string `xml:"version,attr"`
	} `xml:"Player"`
	Media []struct {
		VideoResolution string `xml:"videoResolution,attr"`
		Bitrate         int    `xml:"bitrate,attr"`
		Container       string `xml:"container,attr"`
		VideoCodec      string `xml:"videoCodec,attr"`
		AudioCodec      string `xml:"audioCodec,attr"`
	} `xml:"Media"`
	Session struct {
		ID        string `xml:"id,attr"`
		Bandwidth int    `xml:"bandwidth,attr"`
		Location  string `xml:"location,attr"`
	} `xml:"Session"`
}

func (c *xmlMediaContainer) toMetadata() []types.PlexSessionMetadata {
	entries := make([]xmlSessionEl, 0, len(c.Videos)+len(c.Tracks))
	entries = append(entries, c.Videos...)
	entries = append(entries, c.Tracks...)

	metadata := make([]types.PlexSessionMetadata, 0, len(entries))
	for _, e := range entries {
		m := types.PlexSessionMetadata{
			SessionKey:       e.SessionKey,
			RatingKey:        e.RatingKey,
			ParentRatingKey:  e.ParentRatingKey,
			Title:            e.Title,
			GrandparentTitle: e.GrandparentTitle,
			ParentTitle:      e.ParentTitle,
			Year:             e.Year,
			Duration:         e.Duration,
			ViewOffset:       e.ViewOffset,
			Type:             e.Type,
			Thumb:            e.Thumb,
			Art:              e.Art,
		}
		if e.User.ID != "" {
			m.User = &types.PlexUser{
				ID:    types.FlexID(e.User.ID),
				Title: e.User.Title,
				Thumb: e.User.Thumb,
			}
		}
		if e.Player.MachineIdentifier != "" || e.Player.Address != "" {
			m.Player = &types.PlexPlayer{
				Address:             e.Player.Address,
				MachineIdentifier:   e.Player.MachineIdentifier,
				Platform:            e.Player.Platform,
				Product:             e.Player.Product,
				RemotePublicAddress: e.Player.RemotePublicAddress,
				State:               e.Player.State,
				Title:               e.Player.Title,
				Version:             e.Player.Version,
			}
		}
		for _, media := range e.Media {
			m.Media = append(m.Media, types.PlexMedia{
				VideoResolution: media.VideoResolution,
				Bitrate:         media.Bitrate,
				Container:       media.Container,
				VideoCodec:      media.VideoCodec,
				AudioCodec:      media.AudioCodec,
			})
		}
		if e.Session.ID != "" {
			m.Session = &types.PlexSessionInfo{
				ID:        e.Session.ID,
				Bandwidth: e.Session.Bandwidth,
				Location:  e.Session.Location,
			}
		}
		metadata = append(metadata, m)
	}
	return metadata
}
