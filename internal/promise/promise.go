// Package promise provides a single-resolution future used by the RPC client
// and the session layer.
//
// A Promise settles exactly once: the first Resolve or Reject wins and every
// later settlement attempt is a no-op. Callbacks registered before settlement
// run in registration order on the goroutine that settles the promise;
// callbacks registered after settlement run immediately on the registering
// goroutine. Callbacks for a given promise never run concurrently with each
// other.
package promise

import (
	"context"
	"sync"
)

type state int

const (
	statePending state = iota
	stateResolved
	stateRejected
)

// Promise is a single-resolution container for a value of type T or an error.
type Promise[T any] struct {
	mu        sync.Mutex
	state     state
	value     T
	err       error
	done      chan struct{}
	callbacks []func(T, error)
}

// New returns a pending promise.
func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolved returns a promise already resolved with v.
func Resolved[T any](v T) *Promise[T] {
	p := New[T]()
	p.Resolve(v)
	return p
}

// Rejected returns a promise already rejected with err.
func Rejected[T any](err error) *Promise[T] {
	p := New[T]()
	p.Reject(err)
	return p
}

// Resolve settles the promise with v. It reports whether this call won the
// settlement; losing calls are no-ops.
func (p *Promise[T]) Resolve(v T) bool {
	return p.settle(stateResolved, v, nil)
}

// Reject settles the promise with err. It reports whether this call won the
// settlement; losing calls are no-ops.
func (p *Promise[T]) Reject(err error) bool {
	var zero T
	return p.settle(stateRejected, zero, err)
}

func (p *Promise[T]) settle(s state, v T, err error) bool {
	p.mu.Lock()
	if p.state != statePending {
		p.mu.Unlock()
		return false
	}
	p.state = s
	p.value = v
	p.err = err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn(v, err)
	}
	return true
}

// Settled reports whether the promise has been resolved or rejected.
func (p *Promise[T]) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != statePending
}

// Done returns a channel that closes on settlement.
func (p *Promise[T]) Done() <-chan struct{} { return p.done }

// Await blocks the calling goroutine until settlement and returns the
// outcome.
func (p *Promise[T]) Await() (T, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// AwaitContext blocks until settlement or until ctx is done, whichever comes
// first. A context abort does not settle the promise.
func (p *Promise[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.Await()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnSettle registers fn to run on settlement. If the promise is already
// settled, fn runs immediately before OnSettle returns.
func (p *Promise[T]) OnSettle(fn func(T, error)) {
	p.mu.Lock()
	if p.state == statePending {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	v, err := p.value, p.err
	p.mu.Unlock()
	fn(v, err)
}

// Then registers fn to run with the resolved value and returns a promise that
// settles with fn's outcome. A rejection of p bypasses fn and propagates to
// the returned promise unchanged.
func Then[T, U any](p *Promise[T], fn func(T) (U, error)) *Promise[U] {
	next := New[U]()
	p.OnSettle(func(v T, err error) {
		if err != nil {
			next.Reject(err)
			return
		}
		u, err := fn(v)
		if err != nil {
			next.Reject(err)
			return
		}
		next.Resolve(u)
	})
	return next
}

// ThenPromise is Then for continuations that themselves return a promise: the
// inner promise is flattened into the returned one.
func ThenPromise[T, U any](p *Promise[T], fn func(T) *Promise[U]) *Promise[U] {
	next := New[U]()
	p.OnSettle(func(v T, err error) {
		if err != nil {
			next.Reject(err)
			return
		}
		inner := fn(v)
		if inner == nil {
			var zero U
			next.Resolve(zero)
			return
		}
		inner.OnSettle(func(u U, err error) {
			if err != nil {
				next.Reject(err)
				return
			}
			next.Resolve(u)
		})
	})
	return next
}

// Catch registers fn to run when p rejects and returns a promise that settles
// with fn's outcome. A resolution of p bypasses fn and propagates unchanged,
// so uncaught rejections keep flowing down a Then chain until a Catch handles
// them.
func Catch[T any](p *Promise[T], fn func(error) (T, error)) *Promise[T] {
	next := New[T]()
	p.OnSettle(func(v T, err error) {
		if err == nil {
			next.Resolve(v)
			return
		}
		recovered, err := fn(err)
		if err != nil {
			next.Reject(err)
			return
		}
		next.Resolve(recovered)
	})
	return next
}

// Go runs body on its own goroutine and returns a promise settled with its
// outcome. It is the bridge from callback-style promises to blocking Await
// calls: code inside body may Await freely.
func Go[T any](body func() (T, error)) *Promise[T] {
	p := New[T]()
	go func() {
		v, err := body()
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(v)
	}()
	return p
}
