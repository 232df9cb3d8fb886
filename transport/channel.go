package transport

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrChannelClosed is returned by Receive once a closed channel is drained.
var ErrChannelClosed = errors.New("message channel closed")

// MessageChannel is a buffered channel bound to a lifetime context. Only the
// sending side may Close it.
type MessageChannel[T any] struct {
	channel chan T
	context context.Context
	closed  atomic.Int32
}

func NewMessageChannel[T any](ctx context.Context, bufferSize int) *MessageChannel[T] {
	return &MessageChannel[T]{
		channel: make(chan T, bufferSize),
		context: ctx,
	}
}

func (mc *MessageChannel[T]) Send(ctx context.Context, message T) error {
	if mc.IsClosed() {
		return ErrChannelClosed
	}
	select {
	case mc.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mc.context.Done():
		return mc.context.Err()
	}
}

func (mc *MessageChannel[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case message, ok := <-mc.channel:
		if !ok {
			return zero, ErrChannelClosed
		}
		return message, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-mc.context.Done():
		return zero, mc.context.Err()
	}
}

func (mc *MessageChannel[T]) Close() {
	if mc.closed.CompareAndSwap(0, 1) {
		close(mc.channel)
	}
}

func (mc *MessageChannel[T]) IsClosed() bool {
	return mc.closed.Load() == 1
}
