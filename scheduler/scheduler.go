// Package scheduler defines the contract between the expiring map and the
// strategies that run its delayed expiry actions.
//
// Two strategies are bundled:
//   - scheduler/timer: one driver goroutine over a lazily-canceled heap.
//     Canceled work stays queued until it surfaces or Purge is called.
//   - scheduler/pool: a fixed pool of workers fed from an ordered queue that
//     drops canceled work immediately.
package scheduler

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Handle is a cancelable reference to one scheduled action.
// Once the action has fired or been canceled the handle is inert.
type Handle interface {
	// Cancel reports true if the action had not started yet and now never will.
	// An action that is already running is not interrupted.
	Cancel() bool
}

// Scheduler runs zero-argument actions once, asynchronously, no earlier than
// the requested delay. Actions may run concurrently with each other.
type Scheduler interface {
	// Schedule queues action to run after delay. A non-positive delay makes
	// the action due immediately. After Close it returns an inert Handle.
	Schedule(action func(), delay time.Duration) Handle

	// Purge drops canceled tasks that are still queued and returns how many
	// were removed.
	Purge() int

	// NeedsPurge reports whether canceled tasks linger until Purge is called.
	NeedsPurge() bool

	// Pending returns the number of queued tasks, including canceled tasks
	// that have not been purged yet.
	Pending() int

	// Close stops the scheduler: queued actions are canceled and Close waits
	// for actions that are already running.
	Close() error
}

// Config carries the collaborators shared by all bundled schedulers.
// Zero values are safe: nil Clock is the wall clock, nil Logger is the
// logrus standard logger.
type Config struct {
	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// WithDefaults returns c with nil fields replaced by their defaults.
func (c Config) WithDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}
