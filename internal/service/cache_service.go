package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

type cacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the redis cache for list endpoints. All operations are
// best effort: a cache failure degrades to a database read, never to a
// request failure.
type CacheService struct {
	repo    cacheRepository
	enabled bool
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCacheService constructs CacheService. A nil repo or enabled=false makes
// every lookup a miss.
func NewCacheService(repo cacheRepository, enabled bool, ttl time.Duration, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, enabled: enabled && repo != nil, ttl: ttl, logger: logger}
}

// GetList loads a cached list payload into dest. Returns false on miss.
func (s *CacheService) GetList(ctx context.Context, entity, variant string, dest interface{}) bool {
	if !s.enabled {
		return false
	}
	err := s.repo.Get(ctx, s.listKey(entity, variant), dest)
	if err != nil {
		if appErrors.FromError(err).Code != appErrors.ErrCacheMiss.Code {
			s.logger.Debug("cache read failed", zap.String("entity", entity), zap.Error(err))
		}
		return false
	}
	return true
}

// SetList stores a list payload.
func (s *CacheService) SetList(ctx context.Context, entity, variant string, value interface{}) {
	if !s.enabled {
		return
	}
	if err := s.repo.Set(ctx, s.listKey(entity, variant), value, s.ttl); err != nil {
		s.logger.Debug("cache write failed", zap.String("entity", entity), zap.Error(err))
	}
}

// Invalidate drops every cached list for an entity. Call after any write to
// that entity.
func (s *CacheService) Invalidate(ctx context.Context, entities ...string) {
	if !s.enabled {
		return
	}
	for _, entity := range entities {
		if err := s.repo.DeleteByPattern(ctx, fmt.Sprintf("list:%s:*", entity)); err != nil {
			s.logger.Debug("cache invalidation failed", zap.String("entity", entity), zap.Error(err))
		}
	}
}

func (s *CacheService) listKey(entity, variant string) string {
	return fmt.Sprintf("list:%s:%s", entity, variant)
}
