//go:build integration

package rediscache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"timekeep/internal/platform/rediscache"
	"timekeep/pkg/testutil/containers"
)

type CacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *CacheSuite) TestRoundTrip() {
	type shift struct {
		Start string `json:"start"`
	}
	ctx := context.Background()
	cache := rediscache.New[shift](s.redis.Client, "test:", time.Minute)

	_, ok := cache.Get(ctx, "k")
	s.False(ok)

	cache.Set(ctx, "k", shift{Start: "09:00"})
	got, ok := cache.Get(ctx, "k")
	s.True(ok)
	s.Equal("09:00", got.Start)

	cache.Delete(ctx, "k")
	_, ok = cache.Get(ctx, "k")
	s.False(ok)
}

func (s *CacheSuite) TestUndecodableEntryIsAMiss() {
	ctx := context.Background()
	cache := rediscache.New[int](s.redis.Client, "test:", time.Minute)
	s.Require().NoError(s.redis.Client.Set(ctx, "test:k", "{not json", time.Minute).Err())

	_, ok := cache.Get(ctx, "k")
	s.False(ok)
}
