// Package mru provides the fixed-capacity, most-recently-used cache
// spec.md §4.2 requires for FileReferences' resident bucket set.
//
// It wraps github.com/hashicorp/golang-lru for the doubly-linked LRU/MRU
// core rather than hand-rolling a linked list — that dependency is already
// present in the retrieved example pack's dependency graph — and adds the
// one piece the contract needs that the upstream package doesn't promise:
// Keys returns a snapshot of MRU→LRU order taken at call time, so a caller
// mutating the cache mid-iteration can never observe a torn view (Testable
// Property 9 in SPEC_FULL.md).
package mru

import (
	lru "github.com/hashicorp/golang-lru"
)

// EvictFunc is invoked exactly once, synchronously, when Set pushes the
// cache past capacity and evicts its least-recently-used entry.
type EvictFunc[K comparable, V any] func(key K, value V)

// Cache is a fixed-capacity MRU/LRU cache.
type Cache[K comparable, V any] struct {
	inner   *lru.Cache
	onEvict EvictFunc[K, V]
	keys    map[K]struct{} // mirror of the resident key set; Keys takes its order from inner
}

// New returns a Cache bounded to capacity entries. onEvict, if non-nil, is
// called with the evicted key/value whenever Set pushes the cache past
// capacity.
func New[K comparable, V any](capacity int, onEvict EvictFunc[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{onEvict: onEvict, keys: make(map[K]struct{}, capacity)}

	c.inner, _ = lru.NewWithEvict(capacity, func(key, value any) {
		k := key.(K) //nolint:forcetypeassert // keys are always K, set by this package only
		delete(c.keys, k)

		if c.onEvict != nil {
			c.onEvict(k, value.(V)) //nolint:forcetypeassert // values are always V
		}
	})

	return c
}

// Get retrieves a value and promotes it to most-recently-used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.inner.Get(key)
	if !ok {
		var zero V
		return zero, false
	}

	return v.(V), true //nolint:forcetypeassert
}

// Set inserts or updates a value, promoting it to most-recently-used. If
// this pushes the cache past capacity, onEvict fires for the evicted
// least-recently-used entry before Set returns.
func (c *Cache[K, V]) Set(key K, value V) {
	c.keys[key] = struct{}{}
	c.inner.Add(key, value)
}

// Remove deletes key without invoking onEvict — eviction is reserved for
// capacity overflow, not explicit removal.
func (c *Cache[K, V]) Remove(key K) {
	delete(c.keys, key)

	// golang-lru's Remove runs the eviction callback; silence it here.
	saved := c.onEvict
	c.onEvict = nil
	c.inner.Remove(key)
	c.onEvict = saved
}

// Len returns the number of resident entries.
func (c *Cache[K, V]) Len() int {
	return c.inner.Len()
}

// Keys returns the resident keys in most-recently-used-to-least-recently-
// used order, as a snapshot taken at call time. Later mutation of the
// cache does not affect an already-returned slice.
func (c *Cache[K, V]) Keys() []K {
	raw := c.inner.Keys() // least-recently-used first, per hashicorp/golang-lru
	out := make([]K, len(raw))

	for i, k := range raw {
		out[len(raw)-1-i] = k.(K) //nolint:forcetypeassert // reverse to MRU-first
	}

	return out
}
