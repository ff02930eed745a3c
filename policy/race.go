package policy

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/snow-ghost/readiness/core"
)

// Racer runs calls against a wall-clock deadline: the first of result and
// timeout wins. Each run takes a new generation; a result whose generation
// is no longer current is late and discarded. Runs on one Racer must not overlap.
type Racer struct {
	next    atomic.Uint64
	current atomic.Uint64
	late    atomic.Int64
	onLate  func()
}

// NewRacer creates a Racer; onLate is called once per discarded result
func NewRacer(onLate func()) *Racer {
	return &Racer{onLate: onLate}
}

type outcome struct {
	value interface{}
	err   error
}

// Run executes fn with a context cancelled at the deadline. On timeout it returns
// core.ErrTimeout without waiting for fn; fn's eventual result is discarded.
// timeout <= 0 disables the deadline.
func (r *Racer) Run(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	gen := r.next.Add(1)
	r.current.Store(gen)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		v, err := fn(runCtx)
		if r.current.CompareAndSwap(gen, 0) {
			done <- outcome{value: v, err: err}
			return
		}
		r.late.Add(1)
		if r.onLate != nil {
			r.onLate()
		}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case res := <-done:
		return res.value, res.err
	case <-deadline:
		if r.current.CompareAndSwap(gen, 0) {
			return nil, core.ErrTimeout
		}
	case <-ctx.Done():
		if r.current.CompareAndSwap(gen, 0) {
			return nil, ctx.Err()
		}
	}
	// the result settled between the deadline firing and the swap
	res := <-done
	return res.value, res.err
}

// Generation returns the generation of the most recent run
func (r *Racer) Generation() uint64 {
	return r.next.Load()
}

// Late returns how many results were discarded
func (r *Racer) Late() int64 {
	return r.late.Load()
}
