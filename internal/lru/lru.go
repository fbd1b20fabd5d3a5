// Package lru provides a bounded least-recently-used cache for derived
// per-row and per-group values.
//
// The cache is not safe for concurrent use; callers serialize access.
// Iteration (Keys, All) runs from the least recently used entry to the
// most recently used one.
package lru

import (
	"container/list"
	"errors"
	"fmt"
)

// ErrCapacity is returned by New for a non-positive capacity.
var ErrCapacity = errors.New("lru: capacity must be positive")

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a fixed-capacity LRU map.
type Cache[K comparable, V any] struct {
	capacity int
	ll       *list.List // front = least recently used
	items    map[K]*list.Element
}

// New creates a cache holding at most capacity entries.
func New[K comparable, V any](capacity int) (*Cache[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrCapacity, capacity)
	}
	return &Cache[K, V]{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[K]*list.Element, capacity),
	}, nil
}

// Capacity returns the maximum number of entries.
func (c *Cache[K, V]) Capacity() int { return c.capacity }

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int { return c.ll.Len() }

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.ll.MoveToBack(el)
	return el.Value.(*entry[K, V]).value, true
}

// Peek returns the value for key without touching its recency.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(*entry[K, V]).value, true
}

// Has reports whether key is present. It does not change recency.
func (c *Cache[K, V]) Has(key K) bool {
	_, ok := c.items[key]
	return ok
}

// Set stores value under key as the most recently used entry, evicting
// least recently used entries while the cache is over capacity. The entry
// just written is never the one evicted.
func (c *Cache[K, V]) Set(key K, value V) {
	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.ll.MoveToBack(el)
		return
	}
	c.items[key] = c.ll.PushBack(&entry[K, V]{key: key, value: value})
	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Front())
	}
}

// Delete removes key, reporting whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// DeleteFunc removes every entry whose key satisfies pred and returns the
// number removed.
func (c *Cache[K, V]) DeleteFunc(pred func(K) bool) int {
	n := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		if pred(el.Value.(*entry[K, V]).key) {
			c.removeElement(el)
			n++
		}
		el = next
	}
	return n
}

// Clear removes all entries.
func (c *Cache[K, V]) Clear() {
	c.ll.Init()
	clear(c.items)
}

// Keys returns the keys from least to most recently used.
func (c *Cache[K, V]) Keys() []K {
	keys := make([]K, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

// All calls fn for each entry from least to most recently used until fn
// returns false. Recency is not changed.
func (c *Cache[K, V]) All(fn func(key K, value V) bool) {
	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[K, V])
		if !fn(e.key, e.value) {
			return
		}
	}
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}
