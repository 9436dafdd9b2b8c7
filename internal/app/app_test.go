package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/calmbackend/internal/aicache"
	"github.com/calmbackend/internal/config"
	"github.com/calmbackend/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveCache_PurgesExpiredEntries(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	cache := aicache.New(aicache.WithClock(func() time.Time { return now }))
	cache.Set([]byte(`{"title":"old"}`), aicache.CacheKey{Feature: "panic_plan", Intensity: 7}, "u1")

	now = now.Add(2 * time.Hour)
	cache.Set([]byte(`{"title":"new"}`), aicache.CacheKey{Feature: "panic_plan", Intensity: 2}, "u1")

	path := filepath.Join(t.TempDir(), "cache.json")
	rt := &Runtime{Config: &config.Config{CacheSnapshotPath: path}, Log: logging.Discard()}
	rt.SaveCache(cache)

	assert.Equal(t, 1, cache.Len())

	restored := aicache.New(aicache.WithClock(func() time.Time { return now }))
	loaded, err := restored.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
}

func TestSaveCache_WithoutSnapshotPathStillPurges(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	cache := aicache.New(aicache.WithClock(func() time.Time { return now }))
	cache.Set([]byte(`{}`), aicache.CacheKey{Feature: "panic_plan"}, "u1")
	now = now.Add(aicache.DefaultTTL + time.Minute)

	rt := &Runtime{Config: &config.Config{}, Log: logging.Discard()}
	rt.SaveCache(cache)
	assert.Zero(t, cache.Len())
}
