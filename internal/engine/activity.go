package engine

import (
	"fmt"
	"sync"
	"time"
)

const activityCapacity = 100

// ActivityEntry is one line of the operator-visible rolling log.
type ActivityEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// activityLog is a bounded rolling log of engine state transitions.
type activityLog struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func newActivityLog() *activityLog {
	return &activityLog{}
}

func (l *activityLog) Append(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, ActivityEntry{
		Time:    time.Now(),
		Message: fmt.Sprintf(format, args...),
	})
	if len(l.entries) > activityCapacity {
		l.entries = l.entries[len(l.entries)-activityCapacity:]
	}
}

func (l *activityLog) Entries() []ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ActivityEntry(nil), l.entries...)
}
