package async

import (
	"context"
	"sync"
)

// Scope is a cancellation token shared by a group of tasks. Closing the scope
// cancels every task's context, waits for them to return and guarantees that
// no Do callback runs afterwards.
//
// Tasks started with Go keep running until their function returns; results
// that arrive after Close are simply never observed because callers gate
// their side effects through Do.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewScope derives a scope from parent. Cancelling parent cancels the scope's
// context but does not close it; call Close to release it.
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{ctx: ctx, cancel: cancel}
}

// Context returns the scope's context.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Do runs fn while holding the scope lock, unless the scope is closed or its
// context is done. Calls are serialised. It reports whether fn ran.
//
// fn must not call Close or Go on the same scope.
func (s *Scope) Do(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ctx.Err() != nil {
		return false
	}
	fn(s.ctx)
	return true
}

// Close cancels the scope and blocks until every task started with Go has
// returned. Safe to call more than once.
func (s *Scope) Close() {
	s.cancel()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
}

// Go runs fn(ctx, param) as a task owned by scope. When the scope is already
// closed the returned Future completes immediately with ErrScopeClosed.
func Go[T any, U any](s *Scope, param T, fn func(context.Context, T) (U, error)) *Future[U] {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		var zero U
		return Resolved(zero, ErrScopeClosed)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	f := &Future[U]{done: make(chan struct{})}
	go func() {
		defer s.wg.Done()
		defer close(f.done)
		if err := s.ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.result, f.err = fn(s.ctx, param)
	}()
	return f
}
