// Package movement keeps a bounded history of the guidance events the loop emitted.
package movement

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// DefaultCapacity is the number of events kept when no capacity is configured.
const DefaultCapacity = 1000

// Event types.
const (
	// TypeLandingTarget is guidance that was delivered to the vehicle.
	TypeLandingTarget = "landing_target"
	// TypeTracked is guidance computed while no vehicle was connected, or when delivery failed.
	TypeTracked = "tracked"
)

// Event is one emitted guidance triple. Events are never mutated once appended.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	MarkerID  int       `json:"marker_id"`
	Distance  float64   `json:"distance"`
	AngleX    float64   `json:"angle_x"`
	AngleY    float64   `json:"angle_y"`
}

// Statistics summarizes the log contents.
type Statistics struct {
	Count    int            `json:"count"`
	Capacity int            `json:"capacity"`
	ByType   map[string]int `json:"by_type"`
}

// Log is a fixed capacity FIFO ring. Once full, each append evicts the oldest event. All reads
// return copies taken under the same lock as appends.
type Log struct {
	mu   sync.Mutex
	buf  []Event
	head int // index of the oldest event
	size int
}

// NewLog returns an empty log. A non-positive capacity selects DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]Event, capacity)}
}

// Append adds an event, evicting the oldest one when the log is full.
func (l *Log) Append(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size < len(l.buf) {
		l.buf[(l.head+l.size)%len(l.buf)] = e
		l.size++
		return
	}
	l.buf[l.head] = e
	l.head = (l.head + 1) % len(l.buf)
}

// All returns every event, oldest first.
func (l *Log) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLocked(l.size)
}

// Recent returns up to n of the newest events, oldest first.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLocked(n)
}

func (l *Log) lastLocked(n int) []Event {
	if n > l.size {
		n = l.size
	}
	if n <= 0 {
		return []Event{}
	}
	out := make([]Event, n)
	start := l.head + l.size - n
	for i := range out {
		out[i] = l.buf[(start+i)%len(l.buf)]
	}
	return out
}

// Latest returns the newest event. ok is false when the log is empty.
func (l *Log) Latest() (e Event, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == 0 {
		return Event{}, false
	}
	return l.buf[(l.head+l.size-1)%len(l.buf)], true
}

// Count returns the number of events held; never more than Capacity.
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Capacity returns the maximum number of events held.
func (l *Log) Capacity() int {
	return len(l.buf)
}

// Clear drops every event.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.buf)
	l.head, l.size = 0, 0
}

// Statistics counts the held events by type.
func (l *Log) Statistics() Statistics {
	events := l.All()
	return Statistics{
		Count:    len(events),
		Capacity: l.Capacity(),
		ByType:   lo.CountValuesBy(events, func(e Event) string { return e.Type }),
	}
}
