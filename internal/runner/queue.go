package runner

import (
	"sync"

	"github.com/garak-ctl/garak-ctl/internal/parser"
)

// EventQueue is the unbounded single-producer/single-consumer FIFO
// described in spec.md §4.1 and §5: the reader task is the sole
// producer, progressStream's caller is the sole consumer. enqueue
// never blocks and never drops an event, including the terminal one;
// there is no cap on the queue's length.
//
// The end of the stream is signalled by closeQueue, not by an enqueued
// value: once the queue is closed and drained, Dequeue returns
// (nil, false) without blocking.
type EventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*parser.Event
	closed bool
}

func NewEventQueue() *EventQueue {
	q := &EventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// enqueue appends ev. No-op after close.
func (q *EventQueue) enqueue(ev parser.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	evCopy := ev
	q.items = append(q.items, &evCopy)
	q.cond.Signal()
}

// closeQueue marks the queue closed; any blocked or future dequeue
// drains remaining items then returns (nil, false).
func (q *EventQueue) closeQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Dequeue blocks until an item is available or the queue is closed and
// drained, in which case it returns (nil, false).
func (q *EventQueue) Dequeue() (*parser.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}
