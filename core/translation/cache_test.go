// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package translation

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/pixivfe/tagbridge/core/directory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

var hatsumode = []directory.TranslatedTag{{Name: "hatsumode", Category: directory.CategoryGeneral}}

func newTestCache(t *testing.T, clock *fakeClock) *Cache {
	t.Helper()

	c, err := NewCache(5*time.Minute, 100, WithClock(clock.Now))
	require.NoError(t, err)

	return c
}

func TestCacheTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := newTestCache(t, clock)

	c.Put("初詣", hatsumode)

	got, ok := c.Get("初詣")
	require.True(t, ok)
	assert.Equal(t, hatsumode, got)

	clock.Advance(5*time.Minute - time.Second)

	_, ok = c.Get("初詣")
	assert.True(t, ok, "entry should still be valid just before TTL")

	clock.Advance(time.Second)

	_, ok = c.Get("初詣")
	assert.False(t, ok, "entry should expire at TTL")

	// Expired entries stay until overwritten.
	assert.Equal(t, CacheStats{Size: 1, ValidEntries: 0}, c.Stats())

	c.Put("初詣", hatsumode)
	assert.Equal(t, CacheStats{Size: 1, ValidEntries: 1}, c.Stats())
}

func TestCacheCaseInsensitive(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, newFakeClock())

	c.Put("Blue_Sky", []directory.TranslatedTag{{Name: "blue_sky"}})

	got, ok := c.Get("blue_sky")
	require.True(t, ok)
	assert.Equal(t, "blue_sky", got[0].Name)

	_, ok = c.Get("BLUE_SKY")
	assert.True(t, ok)
}

func TestCacheStoresEmptyResults(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, newFakeClock())

	c.Put("unknown", nil)

	got, ok := c.Get("unknown")
	require.True(t, ok)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCacheReturnsCopies(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, newFakeClock())

	c.Put("初詣", hatsumode)

	got, _ := c.Get("初詣")
	got[0].Name = "changed"

	again, _ := c.Get("初詣")
	assert.Equal(t, "hatsumode", again[0].Name)
}

func TestCacheClearAndStats(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := newTestCache(t, clock)

	assert.Equal(t, CacheStats{}, c.Stats())

	c.Put("a", nil)
	clock.Advance(3 * time.Minute)
	c.Put("b", nil)
	clock.Advance(3 * time.Minute)

	assert.Equal(t, CacheStats{Size: 2, ValidEntries: 1}, c.Stats())

	c.Clear()
	assert.Equal(t, CacheStats{}, c.Stats())
}

func TestCacheBounded(t *testing.T) {
	t.Parallel()

	c, err := NewCache(time.Minute, 2)
	require.NoError(t, err)

	c.Put("a", nil)
	c.Put("b", nil)
	c.Put("c", nil)

	_, ok := c.Get("a")
	assert.False(t, ok, "least recently used entry should be evicted")
	assert.Equal(t, 2, c.Stats().Size)
}

func TestNewCacheDefaults(t *testing.T) {
	t.Parallel()

	c, err := NewCache(0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
}

func TestCacheSnapshot(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	src := newTestCache(t, clock)

	src.Put("初詣", hatsumode)
	clock.Advance(3 * time.Minute)
	src.Put("cat", []directory.TranslatedTag{{Name: "cat"}})
	src.Put("unknown", nil)

	var buf bytes.Buffer
	require.NoError(t, src.SaveSnapshot(&buf))

	clock.Advance(time.Minute)

	dst := newTestCache(t, clock)
	loaded, err := dst.LoadSnapshot(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)

	got, ok := dst.Get("初詣")
	require.True(t, ok)
	assert.Equal(t, hatsumode, got)

	// Timestamps survive the round trip, so the oldest entry expires on time.
	clock.Advance(time.Minute)

	_, ok = dst.Get("初詣")
	assert.False(t, ok)

	_, ok = dst.Get("cat")
	assert.True(t, ok)

	// Loading later skips entries that have expired since.
	clock.Advance(5 * time.Minute)

	late := newTestCache(t, clock)
	loaded, err = late.LoadSnapshot(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, loaded)
}

func TestCacheSnapshotRejectsGarbage(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, newFakeClock())

	_, err := c.LoadSnapshot(bytes.NewReader([]byte("not a snapshot")))
	assert.Error(t, err)
}

func TestCacheSnapshotFile(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "cache.snapshot")

	empty := newTestCache(t, clock)
	require.NoError(t, empty.LoadSnapshotFile(path), "missing snapshot is not an error")

	src := newTestCache(t, clock)
	src.Put("初詣", hatsumode)
	require.NoError(t, src.SaveSnapshotFile(path))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	dst := newTestCache(t, clock)
	require.NoError(t, dst.LoadSnapshotFile(path))

	got, ok := dst.Get("初詣")
	require.True(t, ok)
	assert.Equal(t, hatsumode, got)
}
