package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	id "timekeep/pkg/domain"
)

const fingerprintKeyPrefix = "tk:fp:"

// RedisFingerprints shares the fingerprint set across instances. Claim is a
// single SET NX with expiry, so two instances racing on one punch cannot
// both win.
type RedisFingerprints struct {
	client *redis.Client
}

func NewRedisFingerprints(client *redis.Client) *RedisFingerprints {
	return &RedisFingerprints{client: client}
}

func (s *RedisFingerprints) key(tenantID id.TenantID, fingerprint string) string {
	return fingerprintKeyPrefix + tenantID.String() + ":" + fingerprint
}

func (s *RedisFingerprints) Claim(ctx context.Context, tenantID id.TenantID, fingerprint string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(tenantID, fingerprint), "1", ttl).Result()
}

func (s *RedisFingerprints) Release(ctx context.Context, tenantID id.TenantID, fingerprint string) error {
	return s.client.Del(ctx, s.key(tenantID, fingerprint)).Err()
}
