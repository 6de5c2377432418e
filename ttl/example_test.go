package ttl_test

import (
	"fmt"
	"time"

	"github.com/IvanBrykalov/timedmap/scheduler"
	"github.com/IvanBrykalov/timedmap/scheduler/timer"
	"github.com/IvanBrykalov/timedmap/ttl"
)

func ExampleNew() {
	expired := make(chan string, 1)
	m := ttl.New[string, string](ttl.Options[string, string]{
		Sink: ttl.SinkFunc[string](func(v string) { expired <- v }),
	})
	defer m.Close()

	_ = m.PutWithTTL("x", "a", 20*time.Millisecond)
	v, ok := m.Get("x")
	fmt.Println(v, ok)

	fmt.Println("expired:", <-expired)
	_, ok = m.Get("x")
	fmt.Println(ok)
	// Output:
	// a true
	// expired: a
	// false
}

func ExampleMap_Remove() {
	m := ttl.New[string, int](ttl.Options[string, int]{
		Sink:      ttl.SinkFunc[int](func(v int) { fmt.Println("never", v) }),
		Scheduler: timer.New(scheduler.Config{}),
	})
	defer m.Close()

	_ = m.PutWithTTL("k", 1, 10*time.Millisecond)
	v, ok := m.Remove("k")
	fmt.Println(v, ok)

	time.Sleep(30 * time.Millisecond)
	fmt.Println(m.Len())
	// Output:
	// 1 true
	// 0
}
