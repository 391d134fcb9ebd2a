// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package core

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// Global HTTP client pool, keyed by timeout and TLS mode
	httpClients sync.Map

	// Common errors
	ErrServiceNotConfigured = errors.New("service is not configured")
	ErrNilResponse          = errors.New("received nil response from server")
)

// ServiceCore is the shared HTTP plumbing for upstream clients.
type ServiceCore struct {
	Type        string
	DisplayName string

	// insecureSkipVerify disables TLS certificate checks for self-signed
	// upstream servers (IGNORE_SSL_ERRORS). Clients refresh it from settings
	// while requests are in flight, so access is atomic.
	insecureSkipVerify atomic.Bool
}

// SetInsecureSkipVerify toggles TLS certificate verification for subsequent
// requests.
func (s *ServiceCore) SetInsecureSkipVerify(insecure bool) {
	s.insecureSkipVerify.Store(insecure)
}

type clientKey struct {
	timeout  time.Duration
	insecure bool
}

// getHTTPClient returns a pooled client for the timeout and TLS mode.
func getHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	key := clientKey{timeout: timeout, insecure: insecure}
	if client, ok := httpClients.Load(key); ok {
		return client.(*http.Client)
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}

	httpClients.Store(key, client)
	return client
}

// MakeRequestWithContext makes an HTTP request honoring the context deadline.
func (s *ServiceCore) MakeRequestWithContext(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	if url == "" {
		return nil, ErrServiceNotConfigured
	}

	// Default timeout of 10 seconds if not specified in context
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Failed to create request")
		return nil, err
	}

	req.Header.Set("User-Agent", "plexguard/1.0")
	req.Header.Set("Accept", "application/json")

	for headerKey, headerValue := range headers {
		if headerValue != "" {
			req.Header.Set(headerKey, headerValue)
		}
	}

	start := time.Now()

	client := getHTTPClient(timeout, s.insecureSkipVerify.Load())
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp == nil {
		return nil, ErrNilResponse
	}

	// Redirects usually mean a token problem rather than a moved endpoint
	if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusMovedPermanently {
		resp.Body.Close()
		err := errors.New("received redirect response, possible authentication issue")
		log.Error().Err(err).Str("url", url).Int("status", resp.StatusCode).Msg("Authentication error")
		return nil, err
	}

	resp.Header.Set("X-Response-Time", time.Since(start).String())

	return resp, nil
}

// ReadBody reads and returns the response body, mapping common error status
// codes to errors.
func (s *ServiceCore) ReadBody(resp *http.Response) ([]byte, error) {
	if resp == nil {
		return nil, ErrNilResponse
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var err error
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			err = errors.New("unauthorized access (401)")
		case http.StatusForbidden:
			err = errors.New("access forbidden (403)")
		case http.StatusNotFound:
			err = errors.New("endpoint not found (404)")
		case http.StatusBadGateway:
			err = errors.New("service unavailable (502 bad gateway)")
		case http.StatusServiceUnavailable:
			err = errors.New("service unavailable (503)")
		case http.StatusGatewayTimeout:
			err = errors.New("service timeout (504)")
		default:
			err = errors.New("service error")
		}
		log.Error().Err(err).Int("status", resp.StatusCode).Msg("Upstream error")
		return nil, err
	}

	return body, nil
}
