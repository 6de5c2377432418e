package ttl

import (
	"sync"

	"github.com/IvanBrykalov/timedmap/internal/util"
)

// shard is one lock stripe of the map. The write side of mu is the mutation
// lock for every key that hashes here, so per-key operations are linearized
// while different shards proceed independently.
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu sync.RWMutex
	m  map[K]*entry[V]

	// ---- counters (separate cache lines; expiry workers hit them concurrently) ----
	_          util.CacheLinePad
	expired    util.PaddedAtomicUint64
	stale      util.PaddedAtomicUint64
	removed    util.PaddedAtomicUint64
	replaced   util.PaddedAtomicUint64
	cleared    util.PaddedAtomicUint64
	sinkPanics util.PaddedAtomicUint64
}

func newShard[K comparable, V any]() *shard[K, V] {
	return &shard[K, V]{m: make(map[K]*entry[V])}
}

// swapLocked installs e for k and returns the entry it superseded, if any.
func (s *shard[K, V]) swapLocked(k K, e *entry[V]) (old *entry[V], replaced bool) {
	old, replaced = s.m[k]
	s.m[k] = e
	return old, replaced
}

// takeIfGenLocked removes k only if its entry still has generation gen.
func (s *shard[K, V]) takeIfGenLocked(k K, gen uint64) (*entry[V], bool) {
	e, ok := s.m[k]
	if !ok || e.gen != gen {
		return nil, false
	}
	delete(s.m, k)
	return e, true
}

func (s *shard[K, V]) takeLocked(k K) (*entry[V], bool) {
	e, ok := s.m[k]
	if ok {
		delete(s.m, k)
	}
	return e, ok
}

// drainLocked empties the shard and returns the entries it held.
func (s *shard[K, V]) drainLocked() []*entry[V] {
	out := make([]*entry[V], 0, len(s.m))
	for _, e := range s.m {
		out = append(out, e)
	}
	s.m = make(map[K]*entry[V])
	return out
}

func (s *shard[K, V]) lookup(k K) (*entry[V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[k]
	return e, ok
}

// snapshot copies the shard's live key/value pairs.
func (s *shard[K, V]) snapshot(keys *[]K, vals *[]V) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, e := range s.m {
		*keys = append(*keys, k)
		if vals != nil {
			*vals = append(*vals, e.val)
		}
	}
}
