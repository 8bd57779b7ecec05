package cache

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

/*
Cache is a bounded key/value store with explicit Get, Set and Delete. It has
no TTL: entries leave only when deleted or when the least recently used entry
is evicted to make room. The zero value is not usable; call New.

One Cache is owned by whoever orchestrates a viewing session and is passed
into the resolvers that need it, so its lifetime is the owner's lifetime.
*/
type Cache[K comparable, V any] struct {
	entries *lru.Cache[K, V]
}

// New creates a cache holding at most capacity entries. A capacity of zero
// or less means unbounded.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity <= 0 {
		capacity = math.MaxInt
	}
	entries, err := lru.New[K, V](capacity)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &Cache[K, V]{entries: entries}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.entries.Get(key)
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.entries.Add(key, value)
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	return c.entries.Remove(key)
}

func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

func (c *Cache[K, V]) Clear() {
	c.entries.Purge()
}
