package registry

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// fakeFetcher implements Fetcher for tests.
type fakeFetcher struct {
	registry map[string][]string
	err      error
}

func (f *fakeFetcher) FetchRegistry(ctx context.Context) (map[string][]string, error) {
	return f.registry, f.err
}

func TestSyncer_ReplacesCache(t *testing.T) {
	cache := NewCache()
	cache.Insert("stale_device_01", "user_1")
	fetcher := &fakeFetcher{registry: map[string][]string{
		"esp8266_env_01": {"user_1"},
		"esp8266_env_02": {"user_2"},
	}}

	count, err := NewSyncer(cache, fetcher, zap.NewNop()).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if _, ok := cache.Lookup("stale_device_01"); ok {
		t.Error("sync should drop entries absent from the authority registry")
	}
}

func TestSyncer_FailureKeepsLastKnownGood(t *testing.T) {
	cache := NewCache()
	cache.Insert("esp8266_env_01", "user_1")
	fetcher := &fakeFetcher{err: errors.New("authority down")}

	count, err := NewSyncer(cache, fetcher, zap.NewNop()).Sync(context.Background())
	if err == nil {
		t.Fatal("Sync should surface the fetch error")
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (existing entries retained)", count)
	}
	if _, ok := cache.Lookup("esp8266_env_01"); !ok {
		t.Error("cache must keep last-known-good entries on sync failure")
	}
}
