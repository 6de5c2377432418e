package ttl

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/timedmap/internal/singleflight"
	"github.com/IvanBrykalov/timedmap/internal/util"
	"github.com/IvanBrykalov/timedmap/scheduler"
	"github.com/IvanBrykalov/timedmap/scheduler/pool"
)

var (
	// ErrNilKey is returned when a nil pointer, channel or interface is used as a key.
	ErrNilKey = errors.New("ttl: nil key")
	// ErrClosed is returned by puts after Close.
	ErrClosed = errors.New("ttl: map closed")
	// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
	ErrNoLoader = errors.New("ttl: no Loader provided")
)

// timedMap is the sharded Map implementation.
type timedMap[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	sched  scheduler.Scheduler
	clk    clock.Clock
	log    logrus.FieldLogger

	gen       atomic.Uint64          // last generation handed out
	count     util.PaddedAtomicInt64 // live entries across shards, updated under shard locks
	scheduled atomic.Uint64
	closed    atomic.Bool

	opt Options[K, V]

	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group[K, V]
}

// New constructs a map with the provided Options.
// It panics if opt.Sink is nil.
func New[K comparable, V any](opt Options[K, V]) Map[K, V] {
	if opt.Sink == nil {
		panic("ttl: Sink must not be nil")
	}
	if opt.DefaultTTL <= 0 {
		opt.DefaultTTL = DefaultTTL
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = logrus.StandardLogger()
	}
	if opt.Clock == nil {
		opt.Clock = clock.New()
	}
	if opt.Hasher == nil {
		opt.Hasher = util.NewHasher[K]()
	}
	// default Scheduler: bounded pool sharing the map's clock and logger
	if opt.Scheduler == nil {
		opt.Scheduler = pool.New(pool.Options{
			Config: scheduler.Config{Clock: opt.Clock, Logger: opt.Logger},
		})
	}

	n := util.ShardCount(opt.Shards)
	shards := make([]*shard[K, V], n)
	for i := range shards {
		shards[i] = newShard[K, V]()
	}

	return &timedMap[K, V]{
		shards: shards,
		hash:   opt.Hasher,
		sched:  opt.Scheduler,
		clk:    opt.Clock,
		log:    opt.Logger.WithField("component", "ttl"),
		opt:    opt,
	}
}

// ---- Map[K,V] implementation ----

// Put inserts or replaces k→v with DefaultTTL.
func (c *timedMap[K, V]) Put(k K, v V) error {
	return c.PutWithTTL(k, v, c.opt.DefaultTTL)
}

// PutWithTTL installs a new entry and schedules its expiry in one critical
// section: the new entry is swapped in and the superseded entry's expiry is
// canceled before the shard lock is released, so a key never has two live
// expiry actions.
func (c *timedMap[K, V]) PutWithTTL(k K, v V, ttl time.Duration) error {
	if util.IsNilKey(k) {
		return ErrNilKey
	}
	if c.closed.Load() {
		return ErrClosed
	}
	if ttl < 0 {
		ttl = c.opt.DefaultTTL
	}

	s := c.getShard(k)
	gen := c.gen.Add(1)
	e := &entry[V]{val: v, ttl: ttl, gen: gen}

	s.mu.Lock()
	// Close sets closed under every shard lock before it closes the
	// scheduler, so a put that still sees false here schedules on an open one.
	if c.closed.Load() {
		s.mu.Unlock()
		return ErrClosed
	}
	e.expires = c.clk.Now().Add(ttl)
	e.handle = c.sched.Schedule(func() { c.expire(s, k, gen) }, ttl)
	old, replaced := s.swapLocked(k, e)
	canceled := false
	if replaced {
		canceled = old.handle.Cancel()
	} else {
		c.count.Add(1)
	}
	size := c.count.Load()
	s.mu.Unlock()

	c.scheduled.Add(1)
	c.opt.Metrics.Scheduled()
	if replaced {
		s.replaced.Add(1)
		if canceled {
			c.opt.Metrics.Canceled()
		}
	}
	c.opt.Metrics.Size(int(size))
	return nil
}

// Get returns the value for k and a presence flag. It only takes the shard's
// read lock.
func (c *timedMap[K, V]) Get(k K) (V, bool) {
	e, ok := c.getShard(k).lookup(k)
	if !ok {
		var zero V
		return zero, false
	}
	return e.val, true
}

// GetOrLoad returns the value for k; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key (singleflight).
func (c *timedMap[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	// fast path
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	v, err, _ := c.sf.Do(ctx, k, func() (V, error) {
		// double-check after flight join
		if v, ok := c.Get(k); ok {
			return v, nil
		}
		v, err := c.opt.Loader(ctx, k)
		if err != nil {
			return v, errors.Wrap(err, "ttl: load")
		}
		return v, c.Put(k, v)
	})
	return v, err
}

// Remove deletes k and cancels its pending expiry.
func (c *timedMap[K, V]) Remove(k K) (V, bool) {
	s := c.getShard(k)

	s.mu.Lock()
	e, ok := s.takeLocked(k)
	if !ok {
		s.mu.Unlock()
		var zero V
		return zero, false
	}
	// A cancel that loses the race is harmless: the running action will find
	// the key gone and treat the fire as stale.
	canceled := e.handle.Cancel()
	size := c.count.Add(-1)
	s.mu.Unlock()

	s.removed.Add(1)
	if canceled {
		c.opt.Metrics.Canceled()
	}
	c.opt.Metrics.Size(int(size))
	return e.val, true
}

// Contains reports whether k has a live entry.
func (c *timedMap[K, V]) Contains(k K) bool {
	_, ok := c.getShard(k).lookup(k)
	return ok
}

// IsEmpty reports whether the map has no live entries.
func (c *timedMap[K, V]) IsEmpty() bool { return c.Len() == 0 }

// Len returns the number of live entries across all shards.
func (c *timedMap[K, V]) Len() int { return int(c.count.Load()) }

// Clear locks every shard in index order, cancels every pending expiry and
// empties the map. Nothing is reported to the Sink. Schedulers that keep
// canceled work queued are purged afterwards.
func (c *timedMap[K, V]) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
	}
	var total, canceled int
	for _, s := range c.shards {
		drained := s.drainLocked()
		for _, e := range drained {
			if e.handle.Cancel() {
				canceled++
			}
		}
		s.cleared.Add(uint64(len(drained)))
		total += len(drained)
	}
	size := c.count.Add(-int64(total))
	for i := len(c.shards) - 1; i >= 0; i-- {
		c.shards[i].mu.Unlock()
	}

	for i := 0; i < canceled; i++ {
		c.opt.Metrics.Canceled()
	}
	c.opt.Metrics.Size(int(size))

	purged := 0
	if c.sched.NeedsPurge() {
		purged = c.sched.Purge()
	}
	c.log.WithFields(logrus.Fields{"cleared": total, "purged": purged}).Debug("map cleared")
}

// Keys returns a snapshot of the keys, shard by shard.
func (c *timedMap[K, V]) Keys() []K {
	keys := make([]K, 0, c.Len())
	for _, s := range c.shards {
		s.snapshot(&keys, nil)
	}
	return keys
}

// Range iterates over a snapshot; fn runs without any lock held, so it may
// call back into the map.
func (c *timedMap[K, V]) Range(fn func(k K, v V) bool) {
	var (
		keys []K
		vals []V
	)
	for _, s := range c.shards {
		keys, vals = keys[:0], vals[:0]
		s.snapshot(&keys, &vals)
		for i := range keys {
			if !fn(keys[i], vals[i]) {
				return
			}
		}
	}
}

// TTL returns the remaining lifetime of k and the TTL it was stored with.
func (c *timedMap[K, V]) TTL(k K) (remaining, ttl time.Duration, ok bool) {
	e, ok := c.getShard(k).lookup(k)
	if !ok {
		return 0, 0, false
	}
	remaining = e.expires.Sub(c.clk.Now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, e.ttl, true
}

// Stats aggregates the per-shard counters.
func (c *timedMap[K, V]) Stats() Stats {
	st := Stats{
		Entries:   c.Len(),
		Pending:   c.sched.Pending(),
		Scheduled: c.scheduled.Load(),
	}
	for _, s := range c.shards {
		st.Expired += s.expired.Load()
		st.StaleFires += s.stale.Load()
		st.Removed += s.removed.Load()
		st.Replaced += s.replaced.Load()
		st.Cleared += s.cleared.Load()
		st.SinkPanics += s.sinkPanics.Load()
	}
	return st
}

// Close marks the map closed and closes its scheduler, which cancels queued
// expiries and waits for running ones. Entries stay readable.
func (c *timedMap[K, V]) Close() error {
	for _, s := range c.shards {
		s.mu.Lock()
	}
	first := c.closed.CompareAndSwap(false, true)
	for i := len(c.shards) - 1; i >= 0; i-- {
		c.shards[i].mu.Unlock()
	}
	if !first {
		return nil
	}
	return errors.Wrap(c.sched.Close(), "ttl: close scheduler")
}

// ---- expiry ----

// expire is the scheduled action for generation gen of key k. It removes the
// entry only if that exact generation is still installed, then reports the
// value after the shard lock is released.
func (c *timedMap[K, V]) expire(s *shard[K, V], k K, gen uint64) {
	s.mu.Lock()
	e, ok := s.takeIfGenLocked(k, gen)
	if !ok {
		s.mu.Unlock()
		s.stale.Add(1)
		c.opt.Metrics.StaleFire()
		return
	}
	size := c.count.Add(-1)
	s.mu.Unlock()

	s.expired.Add(1)
	c.opt.Metrics.Expired()
	c.opt.Metrics.Size(int(size))
	if c.debugEnabled() {
		c.log.WithFields(logrus.Fields{"key": k, "generation": gen, "ttl": e.ttl}).Debug("expiring entry")
	}
	c.notify(s, e.val)
}

// notify calls the Sink. A panicking Sink is logged, counted and reported
// to OnSinkPanic; the map is already consistent and nothing is retried.
func (c *timedMap[K, V]) notify(s *shard[K, V], v V) {
	defer func() {
		if r := recover(); r != nil {
			s.sinkPanics.Add(1)
			c.opt.Metrics.SinkPanic()
			c.log.Errorf("expired-event sink panic: %v\n%s", r, debug.Stack())
			if h := c.opt.OnSinkPanic; h != nil {
				h(v, r)
			}
		}
	}()
	c.opt.Sink.NotifyExpired(v)
}

// ---- helpers ----

// getShard picks a shard by hashing the key.
func (c *timedMap[K, V]) getShard(k K) *shard[K, V] {
	return c.shards[util.ShardIndex(c.hash(k), len(c.shards))]
}

func (c *timedMap[K, V]) debugEnabled() bool {
	switch l := c.log.(type) {
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	}
	return true
}
