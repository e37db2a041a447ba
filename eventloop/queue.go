// Package eventloop provides the bounded event queue that a replica drains
// consensus events into.
package eventloop

import (
	"sync"

	"github.com/relab/solid"
)

// Queue is a bounded circular buffer of events.
// If an event is pushed to the queue when it is full, the oldest event is dropped.
type Queue struct {
	mut       sync.Mutex
	entries   []solid.Event
	head      int
	tail      int
	dropped   uint64
	readyChan chan struct{}
}

// NewQueue returns a queue that holds at most capacity events.
func NewQueue(capacity uint) *Queue {
	return &Queue{
		entries:   make([]solid.Event, capacity),
		head:      -1,
		tail:      -1,
		readyChan: make(chan struct{}, 1),
	}
}

// Push appends event. It reports whether the oldest event was dropped to make room.
func (q *Queue) Push(event solid.Event) (dropped bool) {
	q.mut.Lock()
	defer q.mut.Unlock()

	if len(q.entries) == 0 {
		panic("cannot push to a queue with capacity 0")
	}

	pos := q.tail + 1
	if pos == len(q.entries) {
		pos = 0
	}
	if pos == q.head {
		// drop the entry at the head of the queue
		q.entries[q.head] = nil
		q.head++
		if q.head == len(q.entries) {
			q.head = 0
		}
		q.dropped++
		dropped = true
	}
	q.entries[pos] = event
	q.tail = pos

	if q.head == -1 {
		q.head = pos
	}

	select {
	case q.readyChan <- struct{}{}:
	default:
	}
	return dropped
}

// Pop removes and returns the oldest event.
func (q *Queue) Pop() (event solid.Event, ok bool) {
	q.mut.Lock()
	defer q.mut.Unlock()

	if q.head == -1 {
		return nil, false
	}

	event = q.entries[q.head]
	q.entries[q.head] = nil

	if q.head == q.tail {
		q.head = -1
		q.tail = -1
	} else {
		q.head++
		if q.head == len(q.entries) {
			q.head = 0
		}
		// more events remain; keep waiters awake
		select {
		case q.readyChan <- struct{}{}:
		default:
		}
	}

	return event, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mut.Lock()
	defer q.mut.Unlock()

	if q.head == -1 {
		return 0
	}

	if q.head <= q.tail {
		return q.tail - q.head + 1
	}

	return len(q.entries) - q.head + q.tail + 1
}

// Dropped returns the number of events dropped because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mut.Lock()
	defer q.mut.Unlock()
	return q.dropped
}

// Clear drops all queued events.
func (q *Queue) Clear() {
	q.mut.Lock()
	defer q.mut.Unlock()

	for i := range q.entries {
		q.entries[i] = nil
	}
	q.head = -1
	q.tail = -1
	select {
	case <-q.readyChan:
	default:
	}
}

// Ready returns a channel that receives a value after an event is pushed.
// A receive does not guarantee that Pop will succeed, since another consumer may win the race.
func (q *Queue) Ready() <-chan struct{} {
	return q.readyChan
}
