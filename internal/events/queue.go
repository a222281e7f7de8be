package events

import (
	"context"
	"sync"
	"time"

	"pagershim/internal/models"
)

// Queue is an unbounded FIFO of events. Monitors publish without blocking;
// a single consumer drains it with Next.
type Queue struct {
	mu     sync.Mutex
	items  []models.Event
	signal chan struct{}
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Publish appends ev.
func (q *Queue) Publish(ev models.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Next removes and returns the oldest event, waiting up to timeout for one
// to arrive.
func (q *Queue) Next(ctx context.Context, timeout time.Duration) (models.Event, bool) {
	if ev, ok := q.pop(); ok {
		return ev, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return models.Event{}, false
		case <-timer.C:
			return q.pop()
		case <-q.signal:
			if ev, ok := q.pop(); ok {
				return ev, true
			}
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (models.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return models.Event{}, false
	}
	ev := q.items[0]
	q.items[0] = models.Event{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return ev, true
}
