// Package middleware provides HTTP middleware for the audit ledger API.
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/models"
)

// PrincipalKey is the gin context key holding the authenticated principal.
const PrincipalKey = "principal"

// authTimingFloor is the minimum response time for rejected credentials so
// valid and invalid API keys cannot be told apart by latency.
const authTimingFloor = 50 * time.Millisecond

// PrincipalLookup resolves an API key to the principal that owns it.
type PrincipalLookup interface {
	LookupPrincipal(ctx context.Context, apiKey string) (string, error)
}

// StaticKeys is a fixed API key to principal table, used when the ledger runs
// without a database.
type StaticKeys map[string]string

// LookupPrincipal compares apiKey against every configured key in constant time.
func (s StaticKeys) LookupPrincipal(_ context.Context, apiKey string) (string, error) {
	var principal string

	for key, p := range s {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			principal = p
		}
	}

	if principal == "" {
		return "", fmt.Errorf("api key: %w", models.ErrNotFound)
	}

	return principal, nil
}

// Principal returns the principal set by Auth, or "" for unauthenticated requests.
func Principal(c *gin.Context) string {
	return c.GetString(PrincipalKey)
}

// truncateKey returns at most the first 4 characters of key followed by "...".
func truncateKey(key string) string {
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return key
}

// enforceTimingFloor sleeps if needed so the response takes at least authTimingFloor.
func enforceTimingFloor(start time.Time) {
	if elapsed := time.Since(start); elapsed < authTimingFloor {
		time.Sleep(authTimingFloor - elapsed)
	}
}

// Auth returns middleware that authenticates requests with a Bearer API key.
// A nil guard disables failure tracking.
func Auth(lookup PrincipalLookup, log *logrus.Logger, guard *BruteForceGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if c.Writer.Status() == http.StatusUnauthorized {
				enforceTimingFloor(start)
			}
		}()

		apiKey := ExtractBearerToken(c)
		if apiKey == "" {
			respondError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid authorization header")
			return
		}

		principal, err := lookup.LookupPrincipal(c.Request.Context(), apiKey)
		if err != nil {
			logAuthFailure(log, c, apiKey, err)

			if guard != nil {
				guard.RecordFailure(apiKey)
			}

			respondError(c, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}

		if guard != nil {
			guard.ResetKey(apiKey)
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// ExtractBearerToken extracts the API key from the Authorization header.
func ExtractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func logAuthFailure(log *logrus.Logger, c *gin.Context, apiKey string, err error) {
	entry := log.WithFields(logrus.Fields{
		"client_ip":  c.ClientIP(),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"request_id": c.GetString(RequestIDKey),
		"key_prefix": truncateKey(apiKey),
	})

	if !errors.Is(err, models.ErrNotFound) && !errors.Is(err, errCachedNotFound) {
		entry = entry.WithError(err)
	}

	entry.Warn("auth.rejected")
}
