// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package lrucache

import (
	"strconv"
	"sync"
	"testing"
)

// TestNew checks the creation of a new LRUCache with both valid and invalid sizes.
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("ValidSize", func(t *testing.T) {
		t.Parallel()

		cache, err := New[string](3, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cache == nil {
			t.Fatal("expected cache to be initialized")
		}

		// Immediately after creation, the cache should be empty.
		if cache.Len() != 0 {
			t.Errorf("expected cache length to be 0, got %d", cache.Len())
		}
	})

	t.Run("InvalidSize", func(t *testing.T) {
		t.Parallel()

		cache, err := New[string](0, nil)
		if err == nil {
			t.Fatal("expected error when creating cache of size 0, got nil")
		}

		if cache != nil {
			t.Error("expected no cache to be returned on error")
		}
	})
}

// TestLRUCache_AddAndGet verifies that adding a key to the cache and retrieving it works correctly,
// and that eviction occurs once the capacity is reached.
func TestLRUCache_AddAndGet(t *testing.T) {
	t.Parallel()

	var evictedKeys []string

	cache, err := New(2, func(key string, _ string) { evictedKeys = append(evictedKeys, key) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cache.Add("foo", "bar") {
		t.Error("eviction should not occur when the cache is not full")
	}

	value, ok := cache.Get("foo")
	if !ok {
		t.Error("expected to retrieve value for key 'foo'")
	}

	if value != "bar" {
		t.Errorf("expected 'bar', got %v", value)
	}

	cache.Add("hello", "world")

	if cache.Len() != 2 {
		t.Errorf("expected cache length 2, got %d", cache.Len())
	}

	// Adding a third key should cause eviction of the least recently used item.
	if !cache.Add("key3", "value3") {
		t.Error("expected eviction when adding third key to size 2 cache")
	}

	// "foo" was read before "hello" was added, so it is the oldest.
	if _, ok := cache.Get("foo"); ok {
		t.Error("expected 'foo' to be evicted, but it still exists")
	}

	if len(evictedKeys) != 1 || evictedKeys[0] != "foo" {
		t.Errorf("expected onEvict for 'foo', got %v", evictedKeys)
	}
}

// TestLRUCache_AddExistingKey ensures that adding a key that already exists
// updates the value and does not evict any item.
func TestLRUCache_AddExistingKey(t *testing.T) {
	t.Parallel()

	cache, _ := New[string](2, nil)

	cache.Add("k1", "v1")
	cache.Add("k2", "v2")

	if cache.Add("k1", "v1-updated") {
		t.Error("re-adding an existing key should not evict anything")
	}

	val, ok := cache.Get("k1")
	if !ok || val != "v1-updated" {
		t.Errorf("expected 'v1-updated', got %v (found=%v)", val, ok)
	}

	if cache.Len() != 2 {
		t.Errorf("expected cache length 2, got %d", cache.Len())
	}
}

// TestLRUCache_Peek checks that Peek returns the value without updating the item's priority.
func TestLRUCache_Peek(t *testing.T) {
	t.Parallel()

	cache, _ := New[string](2, nil)

	cache.Add("foo", "bar")
	cache.Add("baz", "qux")

	val, ok := cache.Peek("foo")
	if !ok || val != "bar" {
		t.Errorf("expected to peek 'bar' for 'foo', got %v (found=%v)", val, ok)
	}

	// If the peek didn't promote "foo", it remains the oldest and should be evicted.
	cache.Add("third", "value3")

	if _, ok := cache.Get("foo"); ok {
		t.Error("expected 'foo' to be evicted after adding 'third'")
	}

	if _, ok := cache.Get("baz"); !ok {
		t.Error("expected 'baz' to remain in the cache")
	}
}

// TestLRUCache_Remove confirms that removing a key explicitly works.
func TestLRUCache_Remove(t *testing.T) {
	t.Parallel()

	cache, _ := New[string](2, nil)

	cache.Add("foo", "bar")
	cache.Add("key", "value")

	if !cache.Remove("foo") {
		t.Error("expected to remove existing key 'foo'")
	}

	if _, ok := cache.Get("foo"); ok {
		t.Error("expected 'foo' to be removed from cache")
	}

	if cache.Remove("not-present") {
		t.Error("expected false when removing a non-existent key, but got true")
	}
}

// TestLRUCache_KeysAndRange checks ordering from oldest to newest.
func TestLRUCache_KeysAndRange(t *testing.T) {
	t.Parallel()

	cache, _ := New[int](3, nil)
	cache.Add("first", 1)
	cache.Add("second", 2)
	cache.Add("third", 3)

	// Access "first", which should move it to the newest position.
	cache.Get("first")

	expected := []string{"second", "third", "first"}

	keys := cache.Keys()
	for i, k := range keys {
		if k != expected[i] {
			t.Errorf("Keys mismatch: expected %v at idx %d, got %v", expected[i], i, k)
		}
	}

	var ranged []string

	cache.Range(func(key string, _ int) bool {
		ranged = append(ranged, key)

		return len(ranged) < 2
	})

	if len(ranged) != 2 || ranged[0] != "second" || ranged[1] != "third" {
		t.Errorf("Range stopped incorrectly: %v", ranged)
	}
}

// TestLRUCache_Purge verifies that Purge empties the cache.
func TestLRUCache_Purge(t *testing.T) {
	t.Parallel()

	cache, _ := New[int](3, nil)
	cache.Add("a", 1)
	cache.Add("b", 2)

	cache.Purge()

	if cache.Len() != 0 {
		t.Errorf("expected empty cache after Purge, got %d", cache.Len())
	}

	if _, ok := cache.Get("a"); ok {
		t.Error("expected 'a' to be gone after Purge")
	}

	// The cache is still usable.
	cache.Add("c", 3)

	if v, ok := cache.Get("c"); !ok || v != 3 {
		t.Errorf("expected 3 for 'c', got %v (found=%v)", v, ok)
	}
}

// TestLRUCache_Concurrency exercises the cache from multiple goroutines.
func TestLRUCache_Concurrency(t *testing.T) {
	t.Parallel()

	cache, _ := New[int](64, nil)

	var wg sync.WaitGroup

	for worker := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 500 {
				key := strconv.Itoa(worker*1000 + i%100)
				cache.Add(key, i)
				cache.Get(key)
				cache.Peek(key)
			}
		}()
	}

	wg.Wait()

	if cache.Len() > 64 {
		t.Errorf("cache grew past its capacity: %d", cache.Len())
	}
}
