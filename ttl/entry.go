package ttl

import (
	"time"

	"github.com/IvanBrykalov/timedmap/scheduler"
)

// entry binds a value to its pending expiry. Entries are never updated in
// place: a Put for an existing key installs a new entry with a new generation.
type entry[V any] struct {
	val V

	// handle cancels the expiry action scheduled for this generation.
	handle scheduler.Handle

	ttl     time.Duration
	expires time.Time

	// gen is unique per entry. The expiry action carries the generation it
	// was scheduled for and only removes an entry that still matches it.
	gen uint64
}
