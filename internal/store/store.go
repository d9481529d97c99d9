// Package store holds the keyed entity collections mirrored from the game
// server. A Collection keeps insertion order and is not safe for concurrent
// use; the owner serializes access and hands out copies via Snapshot.
package store

// Collection is an ordered map: values live in a slice in insertion order and
// an index map points each key at its slot.
type Collection[K comparable, V any] struct {
	keys  []K
	items []V
	index map[K]int
}

func New[K comparable, V any]() *Collection[K, V] {
	return &Collection[K, V]{index: make(map[K]int)}
}

// Upsert replaces the value stored under key in place, or appends it.
// Reports whether the key was new.
func (c *Collection[K, V]) Upsert(key K, v V) bool {
	if i, ok := c.index[key]; ok {
		c.items[i] = v
		return false
	}
	c.index[key] = len(c.items)
	c.keys = append(c.keys, key)
	c.items = append(c.items, v)
	return true
}

// Remove deletes key and keeps the order of the remaining values.
// Removing an absent key is a no-op.
func (c *Collection[K, V]) Remove(key K) bool {
	i, ok := c.index[key]
	if !ok {
		return false
	}
	delete(c.index, key)

	copy(c.keys[i:], c.keys[i+1:])
	copy(c.items[i:], c.items[i+1:])
	last := len(c.items) - 1
	var zeroK K
	var zeroV V
	c.keys[last] = zeroK
	c.items[last] = zeroV
	c.keys = c.keys[:last]
	c.items = c.items[:last]

	for j := i; j < len(c.keys); j++ {
		c.index[c.keys[j]] = j
	}
	return true
}

func (c *Collection[K, V]) Get(key K) (V, bool) {
	if i, ok := c.index[key]; ok {
		return c.items[i], true
	}
	var zero V
	return zero, false
}

func (c *Collection[K, V]) Len() int { return len(c.items) }

// Snapshot returns a copy of the values in insertion order. Later writes to
// the collection never show through an earlier snapshot.
func (c *Collection[K, V]) Snapshot() []V {
	out := make([]V, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[K, V]) Keys() []K {
	out := make([]K, len(c.keys))
	copy(out, c.keys)
	return out
}
