package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/defolio/defolio/internal/domain"
)

// FundingCache keeps the latest funding-rate observation per instrument so
// the dashboard can show stale-but-recent data while the exchange is
// unreachable.
type FundingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFundingCache creates a FundingCache. ttl bounds how long a stale
// observation is served; zero means one hour.
func NewFundingCache(client *redis.Client, ttl time.Duration) *FundingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &FundingCache{client: client, ttl: ttl}
}

func rateKey(instID string) string { return "funding:rate:" + instID }
func tsKey(instID string) string   { return "funding:ts:" + instID }

func (c *FundingCache) SetRate(ctx context.Context, instID string, rate string, ts time.Time) error {
	pipe := c.client.Pipeline()
	pipe.Set(ctx, rateKey(instID), rate, c.ttl)
	pipe.Set(ctx, tsKey(instID), ts.UTC().Format(time.RFC3339Nano), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: cache rate for %s: %w", instID, err)
	}
	return nil
}

func (c *FundingCache) GetRate(ctx context.Context, instID string) (string, time.Time, error) {
	rate, err := c.client.Get(ctx, rateKey(instID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", time.Time{}, fmt.Errorf("cached rate for %s: %w", instID, domain.ErrNotFound)
		}
		return "", time.Time{}, fmt.Errorf("redis: get rate for %s: %w", instID, err)
	}

	raw, err := c.client.Get(ctx, tsKey(instID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", time.Time{}, fmt.Errorf("redis: get rate timestamp for %s: %w", instID, err)
	}
	var ts time.Time
	if raw != "" {
		ts, _ = time.Parse(time.RFC3339Nano, raw)
	}
	return rate, ts, nil
}

var _ domain.RateCache = (*FundingCache)(nil)
