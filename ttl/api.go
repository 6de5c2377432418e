package ttl

import (
	"context"
	"time"
)

// Map is a concurrent key/value map whose entries expire on their own.
// Every entry carries its own TTL; when it elapses the entry is removed and
// its value is handed to the configured Sink. No caller has to poll.
// All methods are safe for concurrent use by multiple goroutines.
type Map[K comparable, V any] interface {
	// Put inserts or replaces k→v with the map's DefaultTTL.
	// A replaced entry is superseded: its pending expiry is canceled and it is
	// never reported to the Sink.
	Put(k K, v V) error

	// PutWithTTL inserts or replaces k→v with a per-entry TTL.
	// A negative ttl selects DefaultTTL; zero expires as soon as possible.
	PutWithTTL(k K, v V, ttl time.Duration) error

	// Get returns the live value for k and whether it was present.
	Get(k K) (V, bool)

	// GetOrLoad returns the value for k, loading it via Options.Loader on miss
	// and storing it with DefaultTTL. Concurrent loads for one key are coalesced.
	GetOrLoad(ctx context.Context, k K) (V, error)

	// Remove deletes k, cancels its expiry and returns the removed value.
	// Removed entries are not reported to the Sink.
	Remove(k K) (V, bool)

	// Contains reports whether k currently has a live entry.
	Contains(k K) bool

	// IsEmpty reports whether the map holds no entries.
	IsEmpty() bool

	// Len returns the number of live entries.
	Len() int

	// Clear discards every entry without reporting any of them to the Sink.
	Clear()

	// Keys returns a snapshot of the current keys in no particular order.
	Keys() []K

	// Range calls fn for a snapshot of the current entries until fn returns false.
	Range(fn func(k K, v V) bool)

	// TTL returns the time left before k expires and the TTL it was stored with.
	TTL(k K) (remaining, ttl time.Duration, ok bool)

	// Stats returns cumulative counters and the current scheduler backlog.
	Stats() Stats

	// Close cancels all pending expiries and stops the owned scheduler.
	// Subsequent puts return ErrClosed.
	Close() error
}

// Stats is a point-in-time view of the map's counters.
type Stats struct {
	Entries    int    // live entries
	Pending    int    // tasks queued in the scheduler (see scheduler.Scheduler.Pending)
	Scheduled  uint64 // expiry actions scheduled
	Expired    uint64 // entries that expired and were reported to the Sink
	StaleFires uint64 // expiry actions that found their entry already gone or replaced
	Removed    uint64 // entries deleted by Remove
	Replaced   uint64 // entries superseded by a later Put
	Cleared    uint64 // entries discarded by Clear
	SinkPanics uint64 // Sink calls that panicked
}
