// Package concurrent provides a lock-striped map for aggregating values from
// many goroutines at once.
package concurrent

import (
	"sync"

	"golang.org/x/exp/constraints"
)

// DefaultBucketCount is used when a non-positive bucket count is requested.
const DefaultBucketCount = 100

type bucket[K constraints.Integer, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

// Map partitions its keys over a fixed number of buckets, each guarded by its
// own mutex. Operations on keys in different buckets never contend.
type Map[K constraints.Integer, V any] struct {
	buckets []bucket[K, V]
}

func NewMap[K constraints.Integer, V any](bucketCount int) *Map[K, V] {
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}
	m := &Map[K, V]{buckets: make([]bucket[K, V], bucketCount)}
	for i := range m.buckets {
		m.buckets[i].m = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) bucketFor(key K) *bucket[K, V] {
	return &m.buckets[uint64(key)%uint64(len(m.buckets))]
}

// Access runs fn on the value stored under key, inserting the zero value
// first if key is absent. Only key's bucket is locked, and only while fn
// runs. fn must not retain the pointer or call back into the map.
func (m *Map[K, V]) Access(key K, fn func(v *V)) {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.m[key]
	fn(&v)
	b.m[key] = v
}

// Erase removes key. Absent keys are ignored.
func (m *Map[K, V]) Erase(key K) {
	b := m.bucketFor(key)
	b.mu.Lock()
	delete(b.m, key)
	b.mu.Unlock()
}

// BuildOrdinaryMap copies every entry into a plain map, holding one bucket
// lock at a time.
func (m *Map[K, V]) BuildOrdinaryMap() map[K]V {
	out := make(map[K]V)
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		for k, v := range b.m {
			out[k] = v
		}
		b.mu.Unlock()
	}
	return out
}

// Len counts entries bucket by bucket; it is exact only when no writer runs.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		n += len(b.m)
		b.mu.Unlock()
	}
	return n
}

// Buckets is the fixed bucket count.
func (m *Map[K, V]) Buckets() int {
	return len(m.buckets)
}
