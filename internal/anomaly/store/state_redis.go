package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"timekeep/internal/anomaly/models"
	id "timekeep/pkg/domain"
)

const (
	latchKeyPrefix    = "tk:latch:"
	windowKeyPrefix   = "tk:win:"
	sessionKeyPrefix  = "tk:sess:"
	locationKeyPrefix = "tk:loc:"
)

// RedisWindows keeps one sorted set per key, scored by millisecond
// timestamp. Members are entry ids, so a re-recorded entry is not counted
// twice.
type RedisWindows struct {
	client *redis.Client
}

func NewRedisWindows(client *redis.Client) *RedisWindows {
	return &RedisWindows{client: client}
}

func (s *RedisWindows) Record(ctx context.Context, tenantID id.TenantID, key, member string, at time.Time, width time.Duration) (int, error) {
	k := windowKeyPrefix + tenantID.String() + ":" + key
	atMs := at.UnixMilli()
	from := atMs - width.Milliseconds()

	var count *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, k, redis.Z{Score: float64(atMs), Member: member})
		pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(from, 10))
		count = pipe.ZCount(ctx, k, "("+strconv.FormatInt(from, 10), strconv.FormatInt(atMs, 10))
		pipe.PExpire(ctx, k, width)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record window %s: %w", key, err)
	}
	return int(count.Val()), nil
}

// latchEpisode stores the episode end (unix ms) and returns 1 only when no
// episode was open at ARGV[1]. The end only moves forward.
var latchEpisode = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local at = tonumber(ARGV[1])
local nxt = tonumber(ARGV[2])
if nxt > cur then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
end
if cur > at then
  return 0
end
return 1
`)

// Latch is shared by every instance, so only one of them raises the signal
// that opens an episode.
func (s *RedisWindows) Latch(ctx context.Context, tenantID id.TenantID, key string, at time.Time, hold time.Duration) (bool, error) {
	k := latchKeyPrefix + tenantID.String() + ":" + key
	opened, err := latchEpisode.Run(ctx, s.client, []string{k},
		at.UnixMilli(),
		at.Add(hold).UnixMilli(),
		hold.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("latch %s: %w", key, err)
	}
	return opened == 1, nil
}

// RedisSessions keeps live sessions per subject in a sorted set scored by
// expiry, shared by every instance.
type RedisSessions struct {
	client *redis.Client
}

func NewRedisSessions(client *redis.Client) *RedisSessions {
	return &RedisSessions{client: client}
}

func (s *RedisSessions) key(tenantID id.TenantID, subject string) string {
	return sessionKeyPrefix + tenantID.String() + ":" + subject
}

func (s *RedisSessions) Start(ctx context.Context, tenantID id.TenantID, subject, sessionID string, at time.Time, ttl time.Duration) (int, error) {
	k := s.key(tenantID, subject)
	var live *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(at.UnixMilli(), 10))
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(at.Add(ttl).UnixMilli()), Member: sessionID})
		live = pipe.ZCard(ctx, k)
		pipe.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("start session: %w", err)
	}
	return int(live.Val()), nil
}

func (s *RedisSessions) End(ctx context.Context, tenantID id.TenantID, subject, sessionID string) error {
	if err := s.client.ZRem(ctx, s.key(tenantID, subject), sessionID).Err(); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// swapLocation replaces the stored fix only when the new one is newer and
// returns what was stored before, in one round trip.
var swapLocation = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'lat', 'lon', 'at')
if (not cur[3]) or tonumber(ARGV[3]) > tonumber(cur[3]) then
  redis.call('HSET', KEYS[1], 'lat', ARGV[1], 'lon', ARGV[2], 'at', ARGV[3])
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return cur
`)

// RedisLocations shares last-known fixes across instances.
type RedisLocations struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocations keeps each fix for ttl after its last update.
func NewRedisLocations(client *redis.Client, ttl time.Duration) *RedisLocations {
	return &RedisLocations{client: client, ttl: ttl}
}

func (s *RedisLocations) Swap(ctx context.Context, tenantID id.TenantID, subject string, loc models.Location) (*models.Location, error) {
	k := locationKeyPrefix + tenantID.String() + ":" + subject
	res, err := swapLocation.Run(ctx, s.client, []string{k},
		strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
		strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
		loc.At.UnixMilli(),
		s.ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("swap location: %w", err)
	}
	if len(res) != 3 || res[2] == nil {
		return nil, nil
	}
	fields := make([]string, 3)
	for i, v := range res {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("swap location: unexpected reply %T", v)
		}
		fields[i] = str
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("swap location: %w", err)
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("swap location: %w", err)
	}
	atMs, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("swap location: %w", err)
	}
	return &models.Location{Latitude: lat, Longitude: lon, At: time.UnixMilli(atMs).UTC()}, nil
}
