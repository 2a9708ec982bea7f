// Package mailbox provides the bounded command and event channels that
// connect the background sessions to the coordinator.
package mailbox

import (
	"context"
	"errors"
	"sync"
)

// Capacity is the buffer size of every command and event channel.
const Capacity = 100

var (
	// ErrClosed means the receiving task has exited.
	ErrClosed = errors.New("mailbox: receiver has gone away")
	// ErrFull means the receiver is alive but its queue is at capacity.
	ErrFull = errors.New("mailbox: queue full")
)

// Sender is the write end of a task's command queue. Sends never block.
type Sender[T any] struct {
	ch   chan<- T
	done <-chan struct{}
}

// Inbox is the read end owned by the task.
type Inbox[T any] struct {
	C    <-chan T
	done chan struct{}
	once sync.Once
}

// New returns a connected sender and inbox.
func New[T any]() (*Sender[T], *Inbox[T]) {
	ch := make(chan T, Capacity)
	done := make(chan struct{})
	return &Sender[T]{ch: ch, done: done}, &Inbox[T]{C: ch, done: done}
}

// Send enqueues v. It reports ErrClosed once the inbox has been closed and
// ErrFull when the queue is saturated.
func (s *Sender[T]) Send(v T) error {
	if s == nil {
		return ErrClosed
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.ch <- v:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		return ErrFull
	}
}

// Close marks the inbox as gone. Pending items are discarded by the owner.
func (in *Inbox[T]) Close() {
	in.once.Do(func() { close(in.done) })
}

// Done is closed when the inbox has been closed.
func (in *Inbox[T]) Done() <-chan struct{} { return in.done }

// Emit delivers an event to the coordinator, waiting while the queue is
// full. It gives up and returns false once ctx is done.
func Emit[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
