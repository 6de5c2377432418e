package ttl

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/timedmap/scheduler"
)

// DefaultTTL applies when Options.DefaultTTL is not positive.
const DefaultTTL = 300 * time.Millisecond

// Sink receives the value of every entry that expires naturally.
// It is called once per expired entry, on a scheduler goroutine, without any
// map lock held; calls for different keys may run concurrently.
type Sink[V any] interface {
	NotifyExpired(v V)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc[V any] func(v V)

// NotifyExpired calls f(v).
func (f SinkFunc[V]) NotifyExpired(v V) { f(v) }

// Metrics exposes map-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Scheduled()
	Canceled()
	Expired()
	StaleFire()
	SinkPanic()
	Size(entries int)
}

// Options configures the map. Zero values are safe except Sink, which is
// required; defaults are applied in New():
//   - DefaultTTL <= 0 => DefaultTTL (300ms)
//   - nil Scheduler   => pool.New with pool.DefaultWorkers
//   - Shards <= 0     => auto (rounded up to a power of two)
//   - nil Metrics     => NoopMetrics
type Options[K comparable, V any] struct {
	// Sink receives expired values. Required.
	Sink Sink[V]

	// DefaultTTL applies to Put and to PutWithTTL with a negative ttl.
	DefaultTTL time.Duration

	// Scheduler runs expiry actions. The map takes ownership and closes it in
	// Close; do not share one scheduler between maps.
	Scheduler scheduler.Scheduler

	// Shards defines the number of lock stripes. If 0, an automatic value is
	// chosen (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Shards int

	// Hasher spreads keys over shards; nil => FNV-1a for basic key kinds and
	// maphash for any other comparable key.
	Hasher func(k K) uint64

	// Loader fetches a value on miss. Used by GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	// OnSinkPanic is called after a Sink call panicked. The entry is already
	// gone and the notification is not retried.
	OnSinkPanic func(v V, recovered any)

	// Observability
	Metrics Metrics
	Logger  logrus.FieldLogger

	// Clock is the time source for TTL bookkeeping and for the default
	// scheduler. Pass the same clock to a custom Scheduler. Nil => wall clock.
	Clock clock.Clock
}
