// Package screen holds the per-screen owner loop: state is only touched by the
// goroutine running the screen, slow work is fanned out with Scope.Go and its
// results come back through Scope.Post.
package screen

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	log "github.com/sirupsen/logrus"
)

const postBuffer = 64

// ErrOwned is returned when a second owner loop starts on a scope.
var ErrOwned = errors.New("scope already has an owner loop")

// Scope is the unit of work of a screen. Close cancels every child and drops
// the results they post afterwards.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	posts  chan func()

	mu     sync.Mutex
	closed bool
	owner  chan struct{}
}

// NewScope returns a scope cancelled with parent.
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{
		ctx:    ctx,
		cancel: cancel,
		posts:  make(chan func(), postBuffer),
	}
}

// Context is done once the scope is closed.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Go runs fn on a new goroutine. A panic in fn is logged and swallowed.
func (s *Scope) Go(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("screen task panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn(s.ctx)
	}()
}

// Post hands fn to the owner goroutine. It is dropped when the scope is
// closed.
func (s *Scope) Post(fn func()) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.posts <- fn:
	case <-s.ctx.Done():
	}
}

// Posts is read by the owner loop.
func (s *Scope) Posts() <-chan func() {
	return s.posts
}

// Own registers the calling goroutine as the owner loop. The loop calls
// release when it returns; Close waits for it.
func (s *Scope) Own() (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return nil, context.Canceled
	case s.owner != nil:
		return nil, ErrOwned
	}
	owner := make(chan struct{})
	s.owner = owner
	return func() { close(owner) }, nil
}

// Close cancels the scope, then waits for the owner loop and the children.
// It must not be called from either.
func (s *Scope) Close() {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	owner := s.owner
	s.mu.Unlock()
	if owner != nil {
		<-owner
	}
	s.wg.Wait()
	for {
		select {
		case <-s.posts:
		default:
			return
		}
	}
}
