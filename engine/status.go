// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ik5/audroute/internal/log"
)

type Category string

const (
	Info    Category = "Info"
	Warning Category = "Warning"
	Error   Category = "Error"
)

// StatusFunc receives status events on the dispatcher goroutine, one at a
// time and in emission order.
type StatusFunc func(category Category, message string)

// statusQueue bounds how many undelivered events may pile up before new
// ones are dropped.
const statusQueue = 256

type statusEvent struct {
	category Category
	message  string
}

// statusBus decouples emitters (including the device thread) from
// subscribers. Emitting never blocks; a full queue drops the event.
type statusBus struct {
	engine string

	subMu sync.RWMutex
	subs  map[uuid.UUID]StatusFunc
	order []uuid.UUID

	mu     sync.RWMutex
	events chan statusEvent
	done   chan struct{}

	dropped atomic.Int64
}

func newStatusBus(engine string) *statusBus {
	return &statusBus{engine: engine, subs: map[uuid.UUID]StatusFunc{}}
}

func (b *statusBus) add(fn StatusFunc) uuid.UUID {
	id := uuid.New()
	b.subMu.Lock()
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.subMu.Unlock()
	return id
}

func (b *statusBus) remove(id uuid.UUID) bool {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	if _, ok := b.subs[id]; !ok {
		return false
	}
	delete(b.subs, id)
	b.order = slices.DeleteFunc(b.order, func(v uuid.UUID) bool { return v == id })
	return true
}

// start launches the dispatcher. It is a no-op when already started.
func (b *statusBus) start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.events != nil {
		return
	}
	events := make(chan statusEvent, statusQueue)
	done := make(chan struct{})
	b.events, b.done = events, done
	go b.dispatch(events, done)
}

// stop delivers what is queued and joins the dispatcher.
func (b *statusBus) stop() {
	b.detach()()
}

// detach ends emission at once and returns a func that waits for the
// dispatcher to deliver what is queued. The wait must not run while
// holding a lock a subscriber may take.
func (b *statusBus) detach() (flush func()) {
	b.mu.Lock()
	events, done := b.events, b.done
	b.events, b.done = nil, nil
	b.mu.Unlock()

	if events == nil {
		return func() {}
	}
	close(events)
	return func() { <-done }
}

func (b *statusBus) emit(category Category, message string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.events == nil {
		b.dropped.Add(1)
		return
	}
	select {
	case b.events <- statusEvent{category, message}:
	default:
		b.dropped.Add(1)
	}
}

func (b *statusBus) emitf(category Category, format string, args ...any) {
	b.emit(category, fmt.Sprintf(format, args...))
}

func (b *statusBus) dispatch(events <-chan statusEvent, done chan<- struct{}) {
	defer close(done)

	for ev := range events {
		entry := log.WithFields(log.Fields{"category": string(ev.category), "engine": b.engine})
		switch ev.category {
		case Error:
			entry.Error(ev.message)
		case Warning:
			entry.Warn(ev.message)
		default:
			entry.Info(ev.message)
		}

		b.subMu.RLock()
		fns := make([]StatusFunc, 0, len(b.order))
		for _, id := range b.order {
			fns = append(fns, b.subs[id])
		}
		b.subMu.RUnlock()

		for _, fn := range fns {
			deliver(fn, ev)
		}
	}
}

func deliver(fn StatusFunc, ev statusEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("status callback panicked: %v", r)
		}
	}()
	fn(ev.category, ev.message)
}
