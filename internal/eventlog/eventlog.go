// Package eventlog holds the append-only, timestamp-ordered record of a
// discussion's agent events.
package eventlog

import (
	"sync"
	"time"

	"basegraph.app/boardroom/common/id"
	"basegraph.app/boardroom/internal/model"
)

// Resolution is the timestamp granularity. Clients parse timestamps as
// JavaScript dates, which carry milliseconds.
const Resolution = time.Millisecond

type Log struct {
	mu     sync.RWMutex
	events []model.AgentEvent
	now    func() time.Time
}

// New returns an empty log. now may be nil, in which case time.Now is used.
func New(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{now: now}
}

// Append stores a copy of event and returns its position and the stored copy.
// The timestamp is assigned here as max(now, last+1ms), so timestamps are
// strictly increasing even when the wall clock steps backwards.
func (l *Log) Append(event model.AgentEvent) (int, model.AgentEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC().Truncate(Resolution)
	if n := len(l.events); n > 0 {
		if floor := l.events[n-1].Timestamp.Add(Resolution); ts.Before(floor) {
			ts = floor
		}
	}

	stored := model.CloneEvents([]model.AgentEvent{event})[0]
	if stored.ID == "" {
		stored.ID = id.NewString()
	}
	stored.Timestamp = ts

	l.events = append(l.events, stored)
	return len(l.events) - 1, model.CloneEvents([]model.AgentEvent{stored})[0]
}

// Snapshot returns a deep copy of every appended event.
func (l *Log) Snapshot() []model.AgentEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return model.CloneEvents(l.events)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Last returns the most recent event, if any.
func (l *Log) Last() (model.AgentEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return model.AgentEvent{}, false
	}
	return model.CloneEvents(l.events[len(l.events)-1:])[0], true
}
