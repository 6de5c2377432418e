// Package pool implements the pooled scheduling strategy: a dispatcher
// goroutine releases due tasks from an ordered delay queue to a fixed set of
// workers. Canceled tasks are removed from the queue immediately, so memory
// stays bounded without an explicit purge step.
package pool

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/btree"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/timedmap/internal/task"
	"github.com/IvanBrykalov/timedmap/scheduler"
)

// DefaultWorkers is the pool size used when Options.Workers is zero.
const DefaultWorkers = 20

// Options configures a pooled scheduler.
type Options struct {
	scheduler.Config

	// Workers is the number of goroutines running actions; 0 => DefaultWorkers.
	Workers int
}

// Scheduler runs due actions on a bounded worker pool.
type Scheduler struct {
	clk     clock.Clock
	log     logrus.FieldLogger
	workers int

	// ---- guarded by mu ----
	mu     sync.Mutex
	queue  *btree.BTreeG[*task.Task]
	seq    uint64
	closed bool

	wake  chan struct{}
	work  chan *task.Task
	done  chan struct{}
	group errgroup.Group
}

// New starts the dispatcher and the worker pool.
// It panics if Workers is negative.
func New(opt Options) *Scheduler {
	if opt.Workers < 0 {
		panic("pool: Workers must be >= 0")
	}
	if opt.Workers == 0 {
		opt.Workers = DefaultWorkers
	}
	cfg := opt.Config.WithDefaults()

	s := &Scheduler{
		clk:     cfg.Clock,
		log:     cfg.Logger.WithField("scheduler", "pool"),
		workers: opt.Workers,
		queue:   btree.NewBTreeGOptions(task.Less, btree.Options{NoLocks: true}),
		wake:    make(chan struct{}, 1),
		work:    make(chan *task.Task),
		done:    make(chan struct{}),
	}
	for i := 0; i < s.workers; i++ {
		s.group.Go(s.worker)
	}
	s.group.Go(s.dispatch)
	return s
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int { return s.workers }

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
	t := task.New(action, s.clk.Now().Add(delay), s.seq, s.remove)
	s.queue.Set(t)
	head, _ := s.queue.Min()
	s.mu.Unlock()

	if head == t {
		s.notify()
	}
	return t
}

// remove is the task cancel hook: canceled work leaves the queue at once.
func (s *Scheduler) remove(t *task.Task) {
	s.mu.Lock()
	s.queue.Delete(t)
	s.mu.Unlock()
}

// Purge sweeps the queue for canceled tasks. Cancel already removes them,
// so this normally returns 0.
func (s *Scheduler) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*task.Task
	s.queue.Scan(func(t *task.Task) bool {
		if t.Canceled() {
			stale = append(stale, t)
		}
		return true
	})
	for _, t := range stale {
		s.queue.Delete(t)
	}
	return len(stale)
}

// NeedsPurge is false: cancellation removes the task from the queue.
func (s *Scheduler) NeedsPurge() bool { return false }

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Close cancels queued tasks, stops dispatcher and workers, and waits for
// running actions. It must not be called from inside a scheduled action.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	queued := make([]*task.Task, 0, s.queue.Len())
	s.queue.Scan(func(t *task.Task) bool {
		queued = append(queued, t)
		return true
	})
	s.queue = btree.NewBTreeGOptions(task.Less, btree.Options{NoLocks: true})
	s.mu.Unlock()

	for _, t := range queued {
		t.Cancel()
	}
	close(s.done)
	err := s.group.Wait()
	s.log.WithFields(logrus.Fields{
		"canceled": len(queued),
		"workers":  s.workers,
	}).Debug("scheduler closed")
	return err
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch hands due tasks to the workers. Timers are only wakeups: a task is
// released once the clock reports its deadline.
func (s *Scheduler) dispatch() error {
	defer close(s.work)
	for {
		due, next, ok := s.collect()
		for i, t := range due {
			select {
			case s.work <- t:
			case <-s.done:
				for _, rest := range due[i:] {
					rest.Cancel()
				}
				return nil
			}
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
			return nil
		case <-s.wake:
		case <-tc:
		}
		if tm != nil {
			tm.Stop()
		}
	}
}

// collect removes every due task from the queue and returns the next
// pending deadline, if any.
func (s *Scheduler) collect() (due []*task.Task, next time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	for {
		head, found := s.queue.Min()
		if !found {
			return due, time.Time{}, false
		}
		if !head.Due(now) {
			return due, head.Deadline, true
		}
		s.queue.Delete(head)
		due = append(due, head)
	}
}

func (s *Scheduler) worker() error {
	for t := range s.work {
		s.run(t)
	}
	return nil
}

func (s *Scheduler) run(t *task.Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("scheduled action panic: %v\n%s", r, debug.Stack())
		}
	}()
	t.Run()
}

// Compile-time check: ensure Scheduler implements scheduler.Scheduler.
var _ scheduler.Scheduler = (*Scheduler)(nil)
