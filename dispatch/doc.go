// Package dispatch runs native calls off the caller's goroutine and hands
// their results back.
//
// A [Pool] is a fixed set of worker goroutines with an unbounded intake, so
// [Pool.Submit] never blocks the submitter. Work submitted through a
// resource group is serialized by the group; the pool itself imposes no
// ordering.
//
// A [Future] is the completion handle of one operation. Callers either block
// with [Future.Await] or register a continuation with [Future.Then], which is
// delivered on the future's [Loop]: a single goroutine that runs callbacks
// one at a time in completion order, standing in for the caller's event
// loop.
//
//	pool := dispatch.NewPool(4)
//	loop := dispatch.NewLoop()
//	defer loop.Close()
//	defer pool.Close()
//
//	f := dispatch.Go(pool, loop, "checksum", func() (uint32, error) {
//	    return crc(buf), nil
//	})
//	sum, err := f.Await(ctx)
//
// Panics inside tasks are recovered and reported as [*PanicError], which
// matches errors.ErrPanic and carries the stack of the panicking goroutine.
package dispatch
