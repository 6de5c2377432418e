// Package singleflight coalesces concurrent loads of the same key.
package singleflight

import (
	"context"
	"fmt"
	"sync"
)

// Group runs fn at most once per key among concurrent callers; the others
// wait for the shared result.
//
// Cancelling ctx in a follower unblocks only that follower; it does not
// cancel the leader's fn. Thread ctx into fn if the work itself should stop.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
	dups int
}

// Do runs fn once for key. shared reports whether the result was delivered
// to more than one caller. A panic in fn is converted into an error for the
// followers and re-raised in the leader.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err(), true
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.doCall(c, key, fn)
	g.mu.Lock()
	shared = c.dups > 0
	g.mu.Unlock()
	return c.val, c.err, shared
}

// Inflight returns the number of keys with a load in progress.
func (g *Group[K, V]) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

func (g *Group[K, V]) doCall(c *call[V], key K, fn func() (V, error)) {
	normal := false
	defer func() {
		if !normal {
			r := recover()
			c.err = fmt.Errorf("singleflight: load panicked: %v", r)
			g.finish(c, key)
			panic(r)
		}
		g.finish(c, key)
	}()
	c.val, c.err = fn()
	normal = true
}

// finish publishes the result and removes the in-flight marker.
func (g *Group[K, V]) finish(c *call[V], key K) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
	close(c.done)
}
