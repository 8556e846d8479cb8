package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"masterdata/internal/platform/redis"
	"masterdata/internal/storage"
)

const (
	cacheKey = "masterdata:stats"
	cacheTTL = 30 * time.Second
)

// Service serves dashboard statistics with an optional Redis cache in front
// of the counting query. A nil cache client degrades to direct queries.
type Service struct {
	store storage.StatsStore
	cache *redis.Client
	log   *slog.Logger
}

func NewService(store storage.StatsStore, cache *redis.Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, cache: cache, log: log}
}

// Counts returns the request statistics, served from cache when fresh.
// Cache failures are logged and fall through to the store; stats are
// advisory and must never fail a dashboard on a cache hiccup.
func (s *Service) Counts(ctx context.Context) (storage.Counts, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var counts storage.Counts
			if err := json.Unmarshal(raw, &counts); err == nil {
				return counts, nil
			}
			s.log.Warn("discarding undecodable stats cache entry", "error", err)
		}
	}

	counts, err := s.store.CountRequests(ctx)
	if err != nil {
		return counts, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(counts); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, cacheTTL).Err(); err != nil {
				s.log.Warn("caching stats failed", "error", err)
			}
		}
	}
	return counts, nil
}

// Invalidate drops the cached statistics after a mutation.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey).Err(); err != nil {
		s.log.Warn("invalidating stats cache failed", "error", err)
	}
}
