package actor

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// functionBehavior adapts a plain function into an ActorBehavior, for the
// common case where an actor's logic is stateless or closes over state
// rather than needing its own named type.
type functionBehavior[M Message, R any] struct {
	receive func(ctx context.Context, msg M) fn.Result[R]
	onStop  func(ctx context.Context) error
}

// NewFunctionBehavior wraps fn as an ActorBehavior.
func NewFunctionBehavior[M Message, R any](
	fn func(ctx context.Context, msg M) fn.Result[R],
) ActorBehavior[M, R] {

	return &functionBehavior[M, R]{receive: fn}
}

// NewFunctionBehaviorWithStop wraps fn as an ActorBehavior whose OnStop
// hook invokes onStop, satisfying the Stoppable interface.
func NewFunctionBehaviorWithStop[M Message, R any](
	fn func(ctx context.Context, msg M) fn.Result[R],
	onStop func(ctx context.Context) error,
) ActorBehavior[M, R] {

	return &functionBehavior[M, R]{receive: fn, onStop: onStop}
}

// Receive implements ActorBehavior.
func (b *functionBehavior[M, R]) Receive(
	ctx context.Context, msg M,
) fn.Result[R] {

	return b.receive(ctx, msg)
}

// OnStop implements Stoppable when constructed via
// NewFunctionBehaviorWithStop.
func (b *functionBehavior[M, R]) OnStop(ctx context.Context) error {
	if b.onStop == nil {
		return nil
	}
	return b.onStop(ctx)
}
