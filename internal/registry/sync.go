package registry

import (
	"context"

	"go.uber.org/zap"
)

// Fetcher fetches the full device registry from the central authority.
type Fetcher interface {
	FetchRegistry(ctx context.Context) (map[string][]string, error)
}

// Syncer refreshes the access cache from the authority's registry.
type Syncer struct {
	cache   *Cache
	fetcher Fetcher
	logger  *zap.Logger
}

// NewSyncer returns a Syncer that replaces cache contents from fetcher.
func NewSyncer(cache *Cache, fetcher Fetcher, logger *zap.Logger) *Syncer {
	return &Syncer{cache: cache, fetcher: fetcher, logger: logger}
}

// Sync replaces the cache with a fresh registry snapshot and returns the
// resulting device count. On fetch failure the cache keeps its last-known-good
// contents; stale entries stay authorized until the next successful sync.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	reg, err := s.fetcher.FetchRegistry(ctx)
	if err != nil {
		return s.cache.Len(), err
	}

	s.cache.Replace(reg)
	count := s.cache.Len()
	s.logger.Info("registry synced", zap.Int("devices", count))
	return count, nil
}
