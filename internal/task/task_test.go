package task

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTask_RunOnce(t *testing.T) {
	var runs atomic.Int32
	tk := New(func() { runs.Add(1) }, time.Time{}, 1, nil)

	require.True(t, tk.Run())
	require.False(t, tk.Run())
	require.False(t, tk.Cancel(), "cancel after run must report false")
	require.EqualValues(t, 1, runs.Load())
}

func TestTask_CancelBeforeRun(t *testing.T) {
	var canceled *Task
	tk := New(func() { t.Fatal("canceled task ran") }, time.Time{}, 1, func(x *Task) { canceled = x })

	require.True(t, tk.Cancel())
	require.Same(t, tk, canceled)
	require.False(t, tk.Cancel(), "second cancel is a no-op")
	require.False(t, tk.Run())
	require.True(t, tk.Canceled())
}

func TestTask_CancelDoesNotInterrupt(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	tk := New(func() {
		close(started)
		<-release
	}, time.Time{}, 1, nil)

	done := make(chan bool)
	go func() { done <- tk.Run() }()
	<-started
	require.False(t, tk.Cancel())
	close(release)
	require.True(t, <-done)
}

func TestTask_RaceCancelRun(t *testing.T) {
	for i := 0; i < 1000; i++ {
		var runs atomic.Int32
		tk := New(func() { runs.Add(1) }, time.Time{}, uint64(i), nil)

		var wg sync.WaitGroup
		var canceled bool
		wg.Add(2)
		go func() { defer wg.Done(); tk.Run() }()
		go func() { defer wg.Done(); canceled = tk.Cancel() }()
		wg.Wait()

		if canceled {
			require.EqualValues(t, 0, runs.Load())
		} else {
			require.EqualValues(t, 1, runs.Load())
		}
	}
}

func TestInert(t *testing.T) {
	tk := Inert()
	require.False(t, tk.Cancel())
	require.False(t, tk.Run())
	require.False(t, tk.Pending())
}

func TestLess(t *testing.T) {
	base := time.Unix(100, 0)
	a := New(nil, base, 2, nil)
	b := New(nil, base, 3, nil)
	c := New(nil, base.Add(-time.Millisecond), 9, nil)

	require.True(t, Less(a, b))
	require.False(t, Less(b, a))
	require.True(t, Less(c, a))
	require.True(t, a.Due(base))
	require.False(t, a.Due(base.Add(-time.Nanosecond)))
}
