// Package cache keeps verification reports in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/models"
)

// keyPrefix namespaces verification reports in a shared Redis.
const keyPrefix = "auditledger:verify:"

// DefaultTTL bounds how long a report is kept for an unchanged tip.
const DefaultTTL = 5 * time.Minute

// VerificationCache records the latest verification report per chain tip
// hash. Keys carry a per-process boot id: a report written before a restart,
// or by another replica, is never read back.
type VerificationCache struct {
	client *redis.Client
	ttl    time.Duration
	bootID string
	log    *logrus.Logger
}

// NewVerificationCache wraps an existing client. A ttl of zero uses DefaultTTL.
func NewVerificationCache(client *redis.Client, ttl time.Duration, log *logrus.Logger) *VerificationCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &VerificationCache{client: client, ttl: ttl, bootID: uuid.NewString(), log: log}
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(ctx context.Context, url string, ttl time.Duration, log *logrus.Logger) (*VerificationCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck // already failing.
		return nil, fmt.Errorf("cache: pinging redis: %w", err)
	}

	log.WithField("addr", opts.Addr).Info("cache.connected")

	return NewVerificationCache(client, ttl, log), nil
}

func (c *VerificationCache) key(tipHash string) string {
	return keyPrefix + c.bootID + ":" + tipHash
}

// Get returns the report cached for tipHash, or nil when there is none.
func (c *VerificationCache) Get(ctx context.Context, tipHash string) (*models.VerificationReport, error) {
	raw, err := c.client.Get(ctx, c.key(tipHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("cache: reading report: %w", err)
	}

	var report models.VerificationReport
	if err := json.Unmarshal(raw, &report); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		c.log.WithError(err).WithField("tip_hash", tipHash).Warn("cache.corrupt_entry")
		c.client.Del(ctx, c.key(tipHash))

		return nil, nil
	}

	return &report, nil
}

// Put stores report under its tip hash.
func (c *VerificationCache) Put(ctx context.Context, report *models.VerificationReport) error {
	if report.TipHash == "" {
		return nil
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("cache: encoding report: %w", err)
	}

	if err := c.client.Set(ctx, c.key(report.TipHash), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: writing report: %w", err)
	}

	return nil
}

// HealthCheck pings Redis.
func (c *VerificationCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *VerificationCache) Close() error {
	return c.client.Close()
}
