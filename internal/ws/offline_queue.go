package ws

import "messaging-service/internal/models"

// OfflineQueueCapacity bounds each per-user buffer. On overflow the oldest
// entry is dropped; durable history remains in the messages table, so the
// queue only smooths live delivery and is never the source of truth.
const OfflineQueueCapacity = 100

type offlineQueue struct {
	events []models.Event
}

// push appends and reports whether an old entry was dropped to make room.
func (q *offlineQueue) push(ev models.Event) bool {
	dropped := false
	if len(q.events) >= OfflineQueueCapacity {
		copy(q.events, q.events[1:])
		q.events = q.events[:len(q.events)-1]
		dropped = true
	}
	q.events = append(q.events, ev)
	return dropped
}

// drain returns all buffered events in FIFO order and empties the queue.
func (q *offlineQueue) drain() []models.Event {
	events := q.events
	q.events = nil
	return events
}

func (q *offlineQueue) len() int {
	return len(q.events)
}
