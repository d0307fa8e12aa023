// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package translation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"codeberg.org/pixivfe/tagbridge/core/directory"
	"codeberg.org/pixivfe/tagbridge/core/lrucache"
)

// Cache defaults.
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 10000
)

// CacheStats describes the cache contents.
type CacheStats struct {
	// Size is the number of stored entries, expired ones included.
	Size int `json:"size" yaml:"size"`

	// ValidEntries is the number of entries that have not expired.
	ValidEntries int `json:"validEntries" yaml:"validEntries"`
}

// cacheEntry is exported field-wise so snapshots can gob-encode it.
type cacheEntry struct {
	Translations []directory.TranslatedTag
	Timestamp    time.Time
}

// Cache keeps translations for a fixed time.
//
// Expired entries read as misses but are only dropped when overwritten or
// when the cache is full and they are the least recently used.
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	entries *lrucache.LRUCache[cacheEntry]
}

// CacheOption configures a [Cache].
type CacheOption func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache returns a cache holding entries for ttl, bounded to maxEntries.
// Non-positive values take the defaults.
func NewCache(ttl time.Duration, maxEntries int, opts ...CacheOption) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}

	entries, err := lrucache.New[cacheEntry](maxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation cache: %w", err)
	}

	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: entries,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Get returns the translations for tag if they were stored less than TTL ago.
// Tags are compared case-insensitively.
func (c *Cache) Get(tag string) ([]directory.TranslatedTag, bool) {
	entry, ok := c.entries.Get(cacheKey(tag))
	if !ok || !c.valid(entry) {
		return nil, false
	}

	return slices.Clone(entry.Translations), true
}

// Put stores translations for tag, replacing any previous entry.
func (c *Cache) Put(tag string, translations []directory.TranslatedTag) {
	stored := slices.Clone(translations)
	if stored == nil {
		stored = []directory.TranslatedTag{}
	}

	c.entries.Add(cacheKey(tag), cacheEntry{Translations: stored, Timestamp: c.now()})
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.entries.Purge()
}

// Stats counts the stored and the unexpired entries.
func (c *Cache) Stats() CacheStats {
	var stats CacheStats

	c.entries.Range(func(_ string, entry cacheEntry) bool {
		stats.Size++

		if c.valid(entry) {
			stats.ValidEntries++
		}

		return true
	})

	return stats
}

func (c *Cache) valid(entry cacheEntry) bool {
	return c.now().Sub(entry.Timestamp) < c.ttl
}

func cacheKey(tag string) string {
	return strings.ToLower(tag)
}
