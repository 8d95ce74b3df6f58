package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
)

const cacheNamespace = "peerlearn:cache:"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// Loader computes a value on cache miss.
type Loader func(ctx context.Context) (interface{}, error)

// CacheService memoises read-heavy query results (the marketplace leaderboard)
// in Redis. Keys are namespaced and concurrent misses on the same key share
// one load.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
	group      singleflight.Group
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Remember decodes the cached value for key into dest. On a miss it runs load,
// stores the result for ttl and decodes it into dest. The boolean reports a hit.
// Cache failures degrade to calling load directly.
func (s *CacheService) Remember(ctx context.Context, key string, ttl time.Duration, dest interface{}, load Loader) (bool, error) {
	if !s.Enabled() {
		value, err := load(ctx)
		if err != nil {
			return false, err
		}
		return false, assign(value, dest)
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	full := cacheNamespace + key

	start := time.Now()
	err := s.repo.Get(ctx, full, dest)
	s.observe(err == nil, time.Since(start))
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}

	raw, err, _ := s.group.Do(full, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		writeStart := time.Now()
		if err := s.repo.Set(ctx, full, json.RawMessage(encoded), ttl); err != nil {
			s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.ObserveCacheWrite(time.Since(writeStart))
		}
		return encoded, nil
	})
	if err != nil {
		return false, err
	}
	return false, json.Unmarshal(raw.([]byte), dest)
}

// Invalidate removes cached values matching pattern (relative to the namespace).
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	s.group.Forget(cacheNamespace + pattern)
	if err := s.repo.DeleteByPattern(ctx, cacheNamespace+pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

func (s *CacheService) observe(hit bool, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit, d)
	}
}

func assign(value, dest interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
