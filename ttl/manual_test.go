package ttl

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/timedmap/scheduler"
)

// manualScheduler keeps every action it is given and runs them only when
// the test says so. Its handles never cancel, so superseded actions still
// get to fire.
type manualScheduler struct {
	mu      sync.Mutex
	actions []func()
	closed  bool
	late    atomic.Int32 // Schedule calls after Close
}

type stuckHandle struct{}

func (stuckHandle) Cancel() bool { return false }

func (s *manualScheduler) Schedule(action func(), _ time.Duration) scheduler.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.late.Add(1)
	}
	s.actions = append(s.actions, action)
	return stuckHandle{}
}

// fire runs the i-th scheduled action.
func (s *manualScheduler) fire(i int) {
	s.mu.Lock()
	action := s.actions[i]
	s.mu.Unlock()
	action()
}

func (s *manualScheduler) Purge() int       { return 0 }
func (s *manualScheduler) NeedsPurge() bool { return false }

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

func (s *manualScheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// An action for a superseded generation is a no-op even when its cancel
// failed, and a live generation is reported once no matter how often its
// action runs.
func TestMap_StaleFireIsIgnored(t *testing.T) {
	t.Parallel()
	sched := &manualScheduler{}
	rec := &recorder[string]{}
	m := New[string, string](Options[string, string]{Sink: rec, Scheduler: sched})
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.PutWithTTL("k", "v1", time.Minute))
	require.NoError(t, m.PutWithTTL("k", "v2", time.Minute))

	sched.fire(0) // v1's action
	v, ok := m.Get("k")
	require.True(t, ok)
	require.Equal(t, "v2", v)
	require.Zero(t, rec.count())
	require.EqualValues(t, 1, m.Stats().StaleFires)

	sched.fire(1)
	sched.fire(1)
	require.Equal(t, []string{"v2"}, rec.values())
	require.False(t, m.Contains("k"))

	s := m.Stats()
	require.EqualValues(t, 1, s.Expired)
	require.EqualValues(t, 2, s.StaleFires)
}

// A fire for a removed key, or after Clear, is stale too.
func TestMap_FireAfterRemoveOrClear(t *testing.T) {
	t.Parallel()
	sched := &manualScheduler{}
	rec := &recorder[int]{}
	m := New[string, int](Options[string, int]{Sink: rec, Scheduler: sched})
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.Put("a", 1))
	require.NoError(t, m.Put("b", 2))
	m.Remove("a")
	m.Clear()
	require.NoError(t, m.Put("b", 3))

	sched.fire(0)
	sched.fire(1)
	require.Zero(t, rec.count())
	require.Equal(t, 3, must(m.Get("b")))
	require.EqualValues(t, 2, m.Stats().StaleFires)
}

// Puts racing with Close either fail with ErrClosed or are scheduled before
// the scheduler is closed; nothing is scheduled on a closed scheduler.
func TestMap_PutRacingClose(t *testing.T) {
	t.Parallel()
	for round := 0; round < 20; round++ {
		sched := &manualScheduler{}
		m := New[string, int](Options[string, int]{Sink: &recorder[int]{}, Scheduler: sched, Shards: 4})

		var accepted, rejected atomic.Int32
		start := make(chan struct{})
		var g errgroup.Group
		for w := 0; w < 8; w++ {
			g.Go(func() error {
				<-start
				for i := 0; i < 200; i++ {
					switch err := m.Put(fmt.Sprint("k", w, "-", i), i); err {
					case nil:
						accepted.Add(1)
					case ErrClosed:
						rejected.Add(1)
					default:
						return err
					}
				}
				return nil
			})
		}
		close(start)
		require.NoError(t, m.Close())
		require.NoError(t, g.Wait())

		require.Zero(t, sched.late.Load(), "scheduled after Close")
		require.EqualValues(t, accepted.Load(), sched.Pending())
		require.EqualValues(t, 8*200, accepted.Load()+rejected.Load())
	}
}

func must[V any](v V, ok bool) V {
	if !ok {
		panic("unexpected miss")
	}
	return v
}
