package watch

import "sync"

// PendingEvent is an absolute path that changed, targeted at one domain's
// worker.
type PendingEvent struct {
	Path        string
	TargetDomID uint16
}

// PendingQueue is the process-wide queue of events awaiting delivery,
// guarded by its own mutex.
type PendingQueue struct {
	mu     sync.Mutex
	events []PendingEvent
}

// NewPendingQueue builds an empty pending-event queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

// Enqueue appends an event.
func (q *PendingQueue) Enqueue(ev PendingEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
}

// DrainFor removes and returns, in enqueue order, every event targeted at
// domID.
func (q *PendingQueue) DrainFor(domID uint16) []PendingEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	var drained []PendingEvent
	kept := q.events[:0]
	for _, ev := range q.events {
		if ev.TargetDomID == domID {
			drained = append(drained, ev)
		} else {
			kept = append(kept, ev)
		}
	}
	q.events = kept
	return drained
}

// PurgeDomain removes every pending event targeting domID, used during
// domain teardown.
func (q *PendingQueue) PurgeDomain(domID uint16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.events[:0]
	for _, ev := range q.events {
		if ev.TargetDomID != domID {
			kept = append(kept, ev)
		}
	}
	q.events = kept
}

// Len reports the number of events currently queued, for tests.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
