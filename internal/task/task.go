// Package task implements the one-shot, cancelable unit of delayed work that
// the bundled schedulers hand out as scheduler.Handle.
package task

import (
	"sync/atomic"
	"time"
)

// Task states. A task moves pending -> running -> done, or pending -> canceled.
const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateCanceled
)

// Task is a delayed action with an absolute deadline on the scheduler's clock.
// Seq breaks deadline ties so ordering is total and FIFO for equal deadlines.
type Task struct {
	Deadline time.Time
	Seq      uint64

	action   func()
	state    atomic.Int32
	onCancel func(*Task)
}

// New returns a pending task. onCancel, if set, runs after a successful Cancel;
// schedulers use it to drop the task from their queue.
func New(action func(), deadline time.Time, seq uint64, onCancel func(*Task)) *Task {
	return &Task{Deadline: deadline, Seq: seq, action: action, onCancel: onCancel}
}

// Inert returns a task that is already canceled; Cancel on it reports false.
func Inert() *Task {
	t := &Task{}
	t.state.Store(stateCanceled)
	return t
}

// Cancel prevents the action from running. It reports true only if the task
// was still pending; a running or finished action is never interrupted.
func (t *Task) Cancel() bool {
	if !t.state.CompareAndSwap(statePending, stateCanceled) {
		return false
	}
	if t.onCancel != nil {
		t.onCancel(t)
	}
	return true
}

// Run executes the action if the task is still pending.
// It reports whether the action ran.
func (t *Task) Run() bool {
	if !t.state.CompareAndSwap(statePending, stateRunning) {
		return false
	}
	defer t.state.Store(stateDone)
	t.action()
	return true
}

// Canceled reports whether Cancel won the race against Run.
func (t *Task) Canceled() bool { return t.state.Load() == stateCanceled }

// Pending reports whether the task has neither started nor been canceled.
func (t *Task) Pending() bool { return t.state.Load() == statePending }

// Due reports whether the deadline has been reached at now.
func (t *Task) Due(now time.Time) bool { return !now.Before(t.Deadline) }

// Less orders tasks by deadline, then by sequence number.
func Less(a, b *Task) bool {
	if a.Deadline.Equal(b.Deadline) {
		return a.Seq < b.Seq
	}
	return a.Deadline.Before(b.Deadline)
}
