package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/timedmap/scheduler"
)

func newMock(t *testing.T, workers int) (*Scheduler, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	s := New(Options{Config: scheduler.Config{Clock: clk}, Workers: workers})
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

func advanceUntil(t *testing.T, clk *clock.Mock, step time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		clk.Add(step)
		return cond()
	}, 2*time.Second, time.Millisecond)
}

func TestPool_DefaultWorkers(t *testing.T) {
	t.Parallel()
	s, _ := newMock(t, 0)
	require.Equal(t, DefaultWorkers, s.Workers())
	require.False(t, s.NeedsPurge())
}

func TestPool_NegativeWorkersPanics(t *testing.T) {
	require.Panics(t, func() { New(Options{Workers: -1}) })
}

func TestPool_FiresNoEarlierThanDelay(t *testing.T) {
	t.Parallel()
	s, clk := newMock(t, 4)

	var fired atomic.Int32
	s.Schedule(func() { fired.Add(1) }, 50*time.Millisecond)

	clk.Add(49 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, fired.Load())

	advanceUntil(t, clk, time.Millisecond, func() bool { return fired.Load() == 1 })
	require.Zero(t, s.Pending())
}

func TestPool_CancelRemovesImmediately(t *testing.T) {
	t.Parallel()
	s, clk := newMock(t, 2)

	var fired atomic.Int32
	handles := make([]scheduler.Handle, 100)
	for i := range handles {
		handles[i] = s.Schedule(func() { fired.Add(1) }, time.Second)
	}
	require.Equal(t, 100, s.Pending())

	for _, h := range handles {
		require.True(t, h.Cancel())
	}
	require.Zero(t, s.Pending(), "remove-on-cancel leaves nothing queued")
	require.Zero(t, s.Purge())

	clk.Add(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, fired.Load())
}

func TestPool_BoundedConcurrency(t *testing.T) {
	t.Parallel()
	const workers = 3
	s, clk := newMock(t, workers)

	var (
		running, peak atomic.Int32
		finished      sync.WaitGroup
		release       = make(chan struct{})
	)
	for i := 0; i < 10; i++ {
		finished.Add(1)
		s.Schedule(func() {
			defer finished.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}, 10*time.Millisecond)
	}

	advanceUntil(t, clk, 5*time.Millisecond, func() bool { return running.Load() == workers })
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, workers, peak.Load(), "pool must cap concurrent actions")

	close(release)
	finished.Wait()
}

func TestPool_CloseCancelsQueued(t *testing.T) {
	t.Parallel()
	s := New(Options{Config: scheduler.Config{Clock: clock.NewMock()}, Workers: 2})

	handles := make([]scheduler.Handle, 10)
	for i := range handles {
		handles[i] = s.Schedule(func() { t.Error("ran after Close") }, time.Minute)
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Zero(t, s.Pending())
	for _, h := range handles {
		require.False(t, h.Cancel())
	}
	require.False(t, s.Schedule(func() {}, 0).Cancel())
}

func TestPool_PanicDoesNotKillWorker(t *testing.T) {
	t.Parallel()
	s := New(Options{Workers: 1})
	t.Cleanup(func() { _ = s.Close() })

	s.Schedule(func() { panic("boom") }, 0)
	ran := make(chan struct{})
	s.Schedule(func() { close(ran) }, time.Millisecond)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("single worker died after a panicking action")
	}
}
