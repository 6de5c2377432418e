package ttl

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/timedmap/scheduler"
	"github.com/IvanBrykalov/timedmap/scheduler/pool"
	"github.com/IvanBrykalov/timedmap/scheduler/timer"
)

// recorder is a Sink that remembers every value it was handed.
type recorder[V any] struct {
	mu  sync.Mutex
	got []V
}

func (r *recorder[V]) NotifyExpired(v V) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
}

func (r *recorder[V]) values() []V {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]V(nil), r.got...)
}

func (r *recorder[V]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

// strategy builds one of the bundled schedulers on a given clock.
type strategy struct {
	name  string
	build func(clk clock.Clock) scheduler.Scheduler
}

var strategies = []strategy{
	{"timer", func(clk clock.Clock) scheduler.Scheduler {
		return timer.New(scheduler.Config{Clock: clk})
	}},
	{"pool", func(clk clock.Clock) scheduler.Scheduler {
		return pool.New(pool.Options{Config: scheduler.Config{Clock: clk}, Workers: 4})
	}},
}

// forEachStrategy runs fn as a parallel subtest per scheduler strategy.
func forEachStrategy(t *testing.T, fn func(t *testing.T, st strategy)) {
	for _, st := range strategies {
		st := st
		t.Run(st.name, func(t *testing.T) {
			t.Parallel()
			fn(t, st)
		})
	}
}

// newMockMap builds a string-keyed map on a mock clock. opt.Sink, Clock and
// Scheduler are filled in.
func newMockMap[V any](t *testing.T, st strategy, opt Options[string, V]) (Map[string, V], *clock.Mock, *recorder[V]) {
	t.Helper()
	clk := clock.NewMock()
	rec := &recorder[V]{}
	opt.Sink = rec
	opt.Clock = clk
	opt.Scheduler = st.build(clk)
	m := New[string, V](opt)
	t.Cleanup(func() { _ = m.Close() })
	return m, clk, rec
}

// advanceUntil moves the mock clock forward in small steps until cond holds.
func advanceUntil(t *testing.T, clk *clock.Mock, step time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		clk.Add(step)
		return cond()
	}, 3*time.Second, time.Millisecond)
}

// advance moves the mock clock by d in steps and then lets dispatched
// actions settle.
func advance(clk *clock.Mock, d, step time.Duration) {
	for moved := time.Duration(0); moved < d; moved += step {
		clk.Add(step)
	}
	time.Sleep(20 * time.Millisecond)
}
