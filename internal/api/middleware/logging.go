// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Logger returns a gin middleware for logging HTTP requests with zerolog
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Redact sensitive query parameters before logging
		query := c.Request.URL.RawQuery
		if query != "" {
			parsedURL, err := url.ParseQuery(query)
			if err == nil {
				sensitiveParams := []string{
					"apiKey",
					"api_key",
					"key",
					"token",
					"password",
					"secret",
				}

				for param := range parsedURL {
					for _, sensitive := range sensitiveParams {
						if strings.Contains(strings.ToLower(param), strings.ToLower(sensitive)) {
							parsedURL.Set(param, "[REDACTED]")
						}
					}
				}
				query = parsedURL.Encode()
			}
		}

		path := c.Request.URL.Path
		if query != "" {
			path = path + "?" + query
		}

		event := log.Debug()
		if len(c.Errors) > 0 {
			event = log.Error().Err(c.Errors.Last())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("HTTP Request")
	}
}
