package engine

// processingQueue is the ordered sequence of cue identifiers awaiting
// translation. A cue id appears at most once. Not goroutine-safe; the engine
// serializes access under its own lock.
type processingQueue struct {
	order []string
	seen  map[string]bool
}

func newProcessingQueue() *processingQueue {
	return &processingQueue{seen: make(map[string]bool)}
}

// PushTail appends ids in the given order, skipping duplicates. Used by bulk
// "start": insertion order equals display order.
func (q *processingQueue) PushTail(ids ...string) int {
	added := 0
	for _, id := range ids {
		if q.seen[id] {
			continue
		}
		q.seen[id] = true
		q.order = append(q.order, id)
		added++
	}
	return added
}

// PushHead inserts ids at the front for priority re-entry on manual retry.
func (q *processingQueue) PushHead(ids ...string) int {
	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		if q.seen[id] {
			continue
		}
		q.seen[id] = true
		fresh = append(fresh, id)
	}
	q.order = append(fresh, q.order...)
	return len(fresh)
}

// Remove deletes the given ids wherever they sit in the queue.
func (q *processingQueue) Remove(ids ...string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if q.seen[id] {
			drop[id] = true
			delete(q.seen, id)
		}
	}
	if len(drop) == 0 {
		return
	}
	kept := q.order[:0]
	for _, id := range q.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	q.order = kept
}

func (q *processingQueue) Head() (string, bool) {
	if len(q.order) == 0 {
		return "", false
	}
	return q.order[0], true
}

func (q *processingQueue) Len() int {
	return len(q.order)
}

// Snapshot returns a copy of the queued ids in order.
func (q *processingQueue) Snapshot() []string {
	return append([]string(nil), q.order...)
}
