package dispatch

import (
	"context"
	"sync"
)

// Future is the completion handle of one asynchronous operation. It settles
// exactly once, with a value or an error.
type Future[T any] struct {
	done  chan struct{}
	loop  *Loop
	value T
	err   error

	mu        sync.Mutex
	settled   bool
	callbacks []func(T, error)
}

// NewFuture returns an unsettled future and the function that settles it.
// Continuations registered with Then run on loop, or on the settling
// goroutine when loop is nil. Calls to settle after the first are ignored.
func NewFuture[T any](loop *Loop) (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{}), loop: loop}
	return f, f.settle
}

// Resolved returns a future already settled with v.
func Resolved[T any](loop *Loop, v T) *Future[T] {
	f, settle := NewFuture[T](loop)
	settle(v, nil)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[T any](loop *Loop, err error) *Future[T] {
	f, settle := NewFuture[T](loop)
	var zero T
	settle(zero, err)
	return f
}

func (f *Future[T]) settle(v T, err error) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return
	}
	f.settled = true
	f.value, f.err = v, err
	cbs := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	close(f.done)
	for _, cb := range cbs {
		f.deliver(cb)
	}
}

func (f *Future[T]) deliver(cb func(T, error)) {
	v, err := f.value, f.err
	if f.loop != nil {
		if f.loop.Post(func() { cb(v, err) }) == nil {
			return
		}
		Logger().Warn("loop closed, running continuation inline")
	}
	cb(v, err)
}

// Done is closed when the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Settled reports whether the future has a result.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done. A cancelled wait
// does not cancel the operation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if f.Settled() {
		return f.value, f.err
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled value and error. It must only be called after
// Done is closed.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.value, f.err
}

// Err returns the settled error, blocking until the future settles.
func (f *Future[T]) Err() error {
	<-f.done
	return f.err
}

// Then registers cb to run once the future settles. Continuations run in
// registration order.
func (f *Future[T]) Then(cb func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.deliver(cb)
}

// Go runs fn on ex and returns its future. A panic in fn rejects the future
// with a *PanicError. If ex refuses the task the future is rejected with
// that error.
func Go[T any](ex Executor, loop *Loop, name string, fn func() (T, error)) *Future[T] {
	f, settle := NewFuture[T](loop)
	err := ex.Submit(func() {
		settle(Call(name, fn))
	})
	if err != nil {
		var zero T
		settle(zero, err)
	}
	return f
}

// Call runs fn, converting a panic into an error.
func Call[T any](name string, fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, Recover(name, r)
		}
	}()
	return fn()
}

// AwaitAll waits for every future in order and returns the first error.
func AwaitAll[T any](ctx context.Context, fs ...*Future[T]) ([]T, error) {
	out := make([]T, len(fs))
	for i, f := range fs {
		v, err := f.Await(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
