// SPDX-License-Identifier: EPL-2.0

// Package queue provides a bounded FIFO with timed send and receive, an
// end-of-stream marker and a closed state used to wake blocked parties on
// shutdown.
package queue

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrClosed  = errors.New("queue closed")
	ErrTimeout = errors.New("queue wait timed out")
	// ErrDrained is returned by Receive once the producer has called
	// Finish and every queued item has been consumed.
	ErrDrained = errors.New("queue drained")
)

type Bounded[T any] struct {
	items chan T

	mu       sync.Mutex
	eos      chan struct{}
	finished bool

	done      chan struct{}
	closeOnce sync.Once
}

func New[T any](capacity int) *Bounded[T] {
	return &Bounded[T]{
		items: make(chan T, max(capacity, 1)),
		eos:   make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (q *Bounded[T]) Cap() int { return cap(q.items) }
func (q *Bounded[T]) Len() int { return len(q.items) }

// Send enqueues v, waiting at most timeout for room.
func (q *Bounded[T]) Send(v T, timeout time.Duration) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.items <- v:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.items <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-timer.C:
		return ErrTimeout
	}
}

// TrySend enqueues v only if there is room right now.
func (q *Bounded[T]) TrySend(v T) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.items <- v:
		return true
	default:
		return false
	}
}

// Receive dequeues the oldest item, waiting at most timeout. Queued items
// are still returned after Finish; after Close only ErrClosed is.
func (q *Bounded[T]) Receive(timeout time.Duration) (T, error) {
	var zero T

	select {
	case <-q.done:
		return zero, ErrClosed
	case v := <-q.items:
		return v, nil
	default:
	}

	q.mu.Lock()
	eos := q.eos
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-q.items:
		return v, nil
	case <-eos:
		select {
		case v := <-q.items:
			return v, nil
		default:
			return zero, ErrDrained
		}
	case <-q.done:
		return zero, ErrClosed
	case <-timer.C:
		return zero, ErrTimeout
	}
}

// Finish marks the end of the stream. Receivers get ErrDrained once the
// queue is empty instead of waiting out their timeout.
func (q *Bounded[T]) Finish() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.finished {
		q.finished = true
		close(q.eos)
	}
}

// Finished reports whether Finish was called since the last Reset.
func (q *Bounded[T]) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finished
}

// Reset clears the end-of-stream marker and returns the items that were
// queued so the caller can dispose of them.
func (q *Bounded[T]) Reset() []T {
	q.mu.Lock()
	if q.finished {
		q.finished = false
		q.eos = make(chan struct{})
	}
	q.mu.Unlock()

	return q.Flush()
}

// Flush removes and returns every queued item.
func (q *Bounded[T]) Flush() []T {
	var out []T
	for {
		select {
		case v := <-q.items:
			out = append(out, v)
		default:
			return out
		}
	}
}

// Close wakes every blocked sender and receiver. Items still queued stay
// available through Flush. Close is idempotent.
func (q *Bounded[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Done is closed once Close has been called.
func (q *Bounded[T]) Done() <-chan struct{} {
	return q.done
}
