// Package worker provides the concurrency primitives shared by the pipeline
// stages: a bounded task pool, an index-fanout helper and a per-task rate
// limiter for language-model calls.
package worker

import (
	"context"
	"sync"
)

// Pool runs tasks with bounded concurrency. Pipeline stages use it to fan
// out per-chunk and per-annotation work; a slot is held for the duration of
// the task function.
type Pool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewPool creates a pool admitting at most workers concurrent tasks.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{slots: make(chan struct{}, workers)}
}

// Go schedules fn on the pool, blocking while all slots are busy so
// submission cannot outrun execution. It reports whether the task was
// scheduled; a context cancelled before a slot frees returns false.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context)) bool {
	// A done context must win even when a slot is free; a bare select
	// picks between ready cases at random.
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case p.slots <- struct{}{}:
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		fn(ctx)
	}()
	return true
}

// Wait blocks until every scheduled task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Workers returns the pool's concurrency bound.
func (p *Pool) Workers() int {
	return cap(p.slots)
}
