package cache

import (
	"sync"
	"time"
	"tvatt-backend/internal/components/assert"
	"tvatt-backend/internal/components/chrono"
	"tvatt-backend/internal/components/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
)

type lookup string

const (
	lookupHit      lookup = "hit"
	lookupMiss     lookup = "miss"
	lookupExpired  lookup = "expired"
	lookupMismatch lookup = "mismatch"
)

type entry[V any] struct {
	value       V
	fingerprint string
	createdAt   time.Time
}

// ttlStore is a bounded map with lazy expiry: an entry older than ttl is only noticed, and
// dropped, when it is read.
type ttlStore[V any] struct {
	name  string
	ttl   time.Duration
	clock chrono.API

	mutex   sync.Mutex
	entries *lru.Cache[string, entry[V]]
}

func newTTLStore[V any](name string, capacity int, ttl time.Duration, clock chrono.API) (*ttlStore[V], error) {
	assert.Positive(capacity, "capacity")
	assert.Positive(ttl, "ttl")

	entries, err := lru.New[string, entry[V]](capacity)
	if err != nil {
		return nil, err
	}
	return &ttlStore[V]{
		name:    name,
		ttl:     ttl,
		clock:   clock,
		entries: entries,
	}, nil
}

func (s *ttlStore[V]) get(key, fingerprint string) (V, lookup) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var zero V
	cached, ok := s.entries.Get(key)
	if !ok {
		s.observe(lookupMiss)
		return zero, lookupMiss
	}
	if s.clock.Now().Sub(cached.createdAt) >= s.ttl {
		s.entries.Remove(key)
		s.observe(lookupExpired)
		return zero, lookupExpired
	}
	if cached.fingerprint != fingerprint {
		s.observe(lookupMismatch)
		return zero, lookupMismatch
	}
	s.observe(lookupHit)
	return cached.value, lookupHit
}

func (s *ttlStore[V]) put(key, fingerprint string, value V) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries.Add(key, entry[V]{
		value:       value,
		fingerprint: fingerprint,
		createdAt:   s.clock.Now(),
	})
}

func (s *ttlStore[V]) remove(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries.Remove(key)
}

// removeIf drops key only while its current entry satisfies match.
func (s *ttlStore[V]) removeIf(key string, match func(value V, fingerprint string) bool) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cached, ok := s.entries.Peek(key)
	if !ok || !match(cached.value, cached.fingerprint) {
		return false
	}
	s.entries.Remove(key)
	return true
}

func (s *ttlStore[V]) len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.entries.Len()
}

func (s *ttlStore[V]) observe(l lookup) {
	metrics.CacheLookups.WithLabelValues(s.name, string(l)).Inc()
}
