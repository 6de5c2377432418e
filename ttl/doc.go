// Package ttl provides a generic, concurrent map whose entries expire after a
// per-entry time-to-live. When an entry expires on its own it is removed and
// its value is handed to a Sink exactly once. Entries that are removed,
// overwritten or cleared are never reported.
//
// Design
//
//   - Concurrency: the map is split into shards, each protected by an
//     RWMutex. The shard's write lock is the mutation lock for every key that
//     hashes to it, so put, remove, clear and expiry are linearized per key.
//     Reads take only the read lock.
//
//   - Scheduling: expiry is delegated to a scheduler.Scheduler. Two
//     strategies ship with the module: scheduler/timer (one task per entry
//     on a timer-driven heap, canceled work is purged lazily) and
//     scheduler/pool (a bounded worker pool, 20 workers by default, that
//     drops canceled work immediately). The pool is the default.
//
//   - Generations: every put tags its entry with a fresh generation number
//     and the scheduled action captures it. An action whose generation is no
//     longer installed is a stale fire and does nothing. Canceling an
//     action is therefore best effort; correctness never depends on it.
//
//   - Notification: the Sink runs after the shard lock is released, on a
//     scheduler goroutine. A panicking Sink is recovered, logged and
//     reported through Options.OnSinkPanic.
//
//   - Clear: all shards are locked in index order, every pending expiry is
//     canceled and the scheduler is purged if it keeps canceled work queued.
//
// Basic usage
//
//	m := ttl.New[string, string](ttl.Options[string, string]{
//	    Sink: ttl.SinkFunc[string](func(v string) { log.Println("expired", v) }),
//	})
//	defer m.Close()
//
//	_ = m.PutWithTTL("x", "a", 50*time.Millisecond)
//	v, ok := m.Get("x") // "a", true
//	// ~50ms later the sink receives "a" and Get reports absent.
//
// Picking a strategy
//
//	sched := timer.New(scheduler.Config{})
//	m := ttl.New[string, int](ttl.Options[string, int]{Sink: sink, Scheduler: sched})
//
// The map owns its scheduler: Close closes it.
package ttl
