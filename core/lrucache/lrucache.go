// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package lrucache provides a thread-safe, fixed-capacity least-recently-used (LRU) cache.
Keys are strings. The cache evicts the least recently used entry when it reaches capacity.
Values are stored as given; callers that hand out slices from the cache are responsible
for copying them.
*/
package lrucache

import (
	"container/list"
	"errors"
	"sync"
)

var ErrInvalidSize = errors.New("must provide a positive size")

// LRUCache is a fixed-capacity, least-recently-used cache that is safe for concurrent use.
// Instances must be constructed with [New]; the zero value is not ready for use.
type LRUCache[V any] struct {
	size      int                      // Maximum capacity of the cache (number of entries)
	evictList *list.List               // A doubly-linked list to manage the eviction order
	items     map[string]*list.Element // Maps string keys to their corresponding linked-list elements
	lock      sync.RWMutex             // For thread-safe operations
	onEvict   func(key string, value V)
}

// cacheEntry holds the key/value pair stored in each linked-list element.
type cacheEntry[V any] struct {
	key   string
	value V
}

// New creates a new cache with the specified maximum size.
//
// onEvict, if non-nil, is called for every entry dropped because the cache
// was full. It runs with the cache lock held and must not call back into the cache.
//
// It returns an error if size is not a positive integer.
func New[V any](size int, onEvict func(key string, value V)) (*LRUCache[V], error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	return &LRUCache[V]{
		size:      size,
		evictList: list.New(),
		items:     make(map[string]*list.Element),
		onEvict:   onEvict,
	}, nil
}

// Add adds or updates the value for key.
//
// If the key exists, it becomes the most recently used.
// If the cache is at capacity, the least recently used item is evicted.
// Add reports whether an eviction occurred.
func (c *LRUCache[V]) Add(key string, value V) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	// If the item already exists, move it to the front as "most recently used" and update its value.
	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)

		if cacheEnt, ok := ent.Value.(*cacheEntry[V]); ok {
			cacheEnt.value = value
		}

		return false
	}

	// Otherwise, create a new entry and place it at the front.
	c.items[key] = c.evictList.PushFront(&cacheEntry[V]{key: key, value: value})

	// If we've exceeded our capacity, remove the oldest item from the back of the list.
	evicted := c.evictList.Len() > c.size
	if evicted {
		c.removeOldest()
	}

	return evicted
}

// Get retrieves the value for key and marks it as most recently used.
//
// The second result reports whether the key was found.
func (c *LRUCache[V]) Get(key string) (V, bool) {
	// Lock for write since we will move the element to the front.
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V

	ent, ok := c.items[key]
	if !ok {
		return zero, false
	}

	c.evictList.MoveToFront(ent)

	cacheEnt, ok := ent.Value.(*cacheEntry[V])
	if !ok {
		return zero, false
	}

	return cacheEnt.value, true
}

// Peek retrieves the value for key without modifying the LRU order.
//
// The second result reports whether the key was found.
func (c *LRUCache[V]) Peek(key string) (V, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	var zero V

	ent, ok := c.items[key]
	if !ok {
		return zero, false
	}

	cacheEnt, ok := ent.Value.(*cacheEntry[V])
	if !ok {
		return zero, false
	}

	return cacheEnt.value, true
}

// Remove deletes the entry associated with key from the cache.
//
// Remove reports whether the key was present and removed.
func (c *LRUCache[V]) Remove(key string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)

		return true
	}

	return false
}

// Purge removes every entry. onEvict is not called.
func (c *LRUCache[V]) Purge() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.evictList.Init()
	c.items = make(map[string]*list.Element)
}

// Keys returns a slice of all keys in the cache, from the oldest to the newest.
func (c *LRUCache[V]) Keys() []string {
	c.lock.RLock()
	defer c.lock.RUnlock()

	keys := make([]string, 0, len(c.items))

	// The back of the list is the oldest entry.
	for ent := c.evictList.Back(); ent != nil; ent = ent.Prev() {
		if cacheEnt, ok := ent.Value.(*cacheEntry[V]); ok {
			keys = append(keys, cacheEnt.key)
		}
	}

	return keys
}

// Range calls fn for every entry from the oldest to the newest without changing
// the LRU order. fn must not call back into the cache. Iteration stops when fn
// returns false.
func (c *LRUCache[V]) Range(fn func(key string, value V) bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	for ent := c.evictList.Back(); ent != nil; ent = ent.Prev() {
		cacheEnt, ok := ent.Value.(*cacheEntry[V])
		if !ok {
			continue
		}

		if !fn(cacheEnt.key, cacheEnt.value) {
			return
		}
	}
}

// Len returns the current number of items in the cache.
func (c *LRUCache[V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.evictList.Len()
}

// removeOldest removes the oldest item from both the linked list and the map.
func (c *LRUCache[V]) removeOldest() {
	ent := c.evictList.Back()
	if ent == nil {
		return
	}

	c.removeElement(ent)

	if c.onEvict != nil {
		if kv, ok := ent.Value.(*cacheEntry[V]); ok {
			c.onEvict(kv.key, kv.value)
		}
	}
}

// removeElement removes a specific list element from the eviction list and
// deletes it from the map.
func (c *LRUCache[V]) removeElement(e *list.Element) {
	c.evictList.Remove(e)

	if kv, ok := e.Value.(*cacheEntry[V]); ok {
		delete(c.items, kv.key)
	}
}
