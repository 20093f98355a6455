package service

import (
	"context"
	"sync/atomic"
)

// Generation is the token handed to every loop of one session. Revoking it
// cancels its context, which only cuts idle waits short; work already in
// progress finishes on the caller's own context.
type Generation struct {
	ID uint64

	ctx       context.Context
	cancel    context.CancelFunc
	enrolling atomic.Bool
}

func newGeneration(parent context.Context, id uint64) *Generation {
	ctx, cancel := context.WithCancel(parent)
	return &Generation{ID: id, ctx: ctx, cancel: cancel}
}

// NewGeneration returns a standalone generation, mostly for tests and
// one-shot tools. Call Revoke when done.
func NewGeneration(parent context.Context, id uint64) *Generation {
	return newGeneration(parent, id)
}

// Context is cancelled on revocation.
func (g *Generation) Context() context.Context { return g.ctx }

func (g *Generation) Done() <-chan struct{} { return g.ctx.Done() }

func (g *Generation) Revoked() bool { return g.ctx.Err() != nil }

func (g *Generation) Revoke() { g.cancel() }

func (g *Generation) beginEnrollment() bool { return g.enrolling.CompareAndSwap(false, true) }

func (g *Generation) endEnrollment() { g.enrolling.Store(false) }
