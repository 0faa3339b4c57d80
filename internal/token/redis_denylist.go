package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Denylist = (*RedisDenylist)(nil)

// RedisDenylist shares revocations between instances. Keys expire on their own
// when the token would have.
type RedisDenylist struct {
	client    redis.UniversalClient
	keyPrefix string
	now       Clock
}

func NewRedisDenylist(ctx context.Context, url string, keyPrefix string) (*RedisDenylist, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisDenylistFromClient(client, keyPrefix, nil), nil
}

func NewRedisDenylistFromClient(client redis.UniversalClient, keyPrefix string, now Clock) *RedisDenylist {
	if now == nil {
		now = SystemClock
	}
	return &RedisDenylist{client: client, keyPrefix: keyPrefix, now: now}
}

func (d *RedisDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(d.now())
	if tokenID == "" || ttl <= 0 {
		return nil
	}

	if err := d.client.Set(ctx, d.keyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.keyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDenylist) Close() error {
	return d.client.Close()
}
