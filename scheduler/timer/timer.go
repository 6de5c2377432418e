// Package timer implements the per-entry scheduling strategy: every action is
// an independent task in one binary heap, serviced by a single driver
// goroutine. Cancel only marks a task; canceled tasks are discarded when they
// reach the head of the heap or when Purge is called.
package timer

import (
	"container/heap"
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/timedmap/internal/task"
	"github.com/IvanBrykalov/timedmap/scheduler"
)

// Scheduler drives all delayed actions from one goroutine and dispatches each
// due action on its own goroutine, so actions run concurrently.
type Scheduler struct {
	clk clock.Clock
	log logrus.FieldLogger

	// ---- guarded by mu ----
	mu     sync.Mutex
	queue  taskHeap
	seq    uint64
	closed bool

	wake     chan struct{} // buffered(1): a new head was pushed
	done     chan struct{} // closed by Close
	loop     sync.WaitGroup
	inflight sync.WaitGroup
}

// New starts a timer scheduler.
func New(cfg scheduler.Config) *Scheduler {
	cfg = cfg.WithDefaults()
	s := &Scheduler{
		clk:  cfg.Clock,
		log:  cfg.Logger.WithField("scheduler", "timer"),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.loop.Add(1)
	go s.run()
	return s
}

// Schedule queues action to run after delay.
func (s *Scheduler) Schedule(action func(), delay time.Duration) scheduler.Handle {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return task.Inert()
	}
	s.seq++
	t := task.New(action, s.clk.Now().Add(delay), s.seq, nil)
	heap.Push(&s.queue, t)
	isHead := s.queue[0] == t
	s.mu.Unlock()

	// The driver only needs to re-arm when the earliest deadline moved.
	if isHead {
		s.notify()
	}
	return t
}

// Purge removes canceled tasks from the heap.
func (s *Scheduler) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.queue[:0]
	for _, t := range s.queue {
		if !t.Canceled() {
			kept = append(kept, t)
		}
	}
	removed := len(s.queue) - len(kept)
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = kept
	heap.Init(&s.queue)
	if removed > 0 {
		s.log.WithField("removed", removed).Debug("purged canceled tasks")
	}
	return removed
}

// NeedsPurge is true: canceled tasks stay queued until they surface or Purge runs.
func (s *Scheduler) NeedsPurge() bool { return true }

// Pending returns the heap size, canceled-but-unpurged tasks included.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close cancels queued tasks, stops the driver and waits for running actions.
// It must not be called from inside a scheduled action.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, t := range queued {
		t.Cancel()
	}
	close(s.done)
	s.loop.Wait()
	s.inflight.Wait()
	s.log.WithField("canceled", len(queued)).Debug("scheduler closed")
	return nil
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the driver loop. Timers are only wakeups: a task is released once
// the clock reports its deadline, never earlier.
func (s *Scheduler) run() {
	defer s.loop.Done()
	for {
		due, next, ok := s.collect()
		for _, t := range due {
			s.inflight.Add(1)
			go s.fire(t)
		}

		var (
			tm *clock.Timer
			tc <-chan time.Time
		)
		if ok {
			wait := next.Sub(s.clk.Now())
			if wait <= 0 {
				continue
			}
			tm = s.clk.Timer(wait)
			tc = tm.C
		}
		select {
		case <-s.done:
			if tm != nil {
				tm.Stop()
			}
			return
		case <-s.wake:
		case <-tc:
		}
		if tm != nil {
			tm.Stop()
		}
	}
}

// collect pops every due task and drops canceled ones at the head.
// It returns the next pending deadline, if any.
func (s *Scheduler) collect() (due []*task.Task, next time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	for len(s.queue) > 0 {
		head := s.queue[0]
		if head.Canceled() {
			heap.Pop(&s.queue)
			continue
		}
		if !head.Due(now) {
			return due, head.Deadline, true
		}
		heap.Pop(&s.queue)
		due = append(due, head)
	}
	return due, time.Time{}, false
}

func (s *Scheduler) fire(t *task.Task) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("scheduled action panic: %v\n%s", r, debug.Stack())
		}
	}()
	t.Run()
}

// taskHeap is a min-heap of tasks ordered by task.Less.
type taskHeap []*task.Task

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return task.Less(h[i], h[j]) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*task.Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Compile-time check: ensure Scheduler implements scheduler.Scheduler.
var _ scheduler.Scheduler = (*Scheduler)(nil)
