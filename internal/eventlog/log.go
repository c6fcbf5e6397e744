// Package eventlog is the append-only, sequence-ordered feed of news, trades
// and quote changes that pollers read with a cursor.
package eventlog

import (
	"sync"
	"time"

	"github.com/google/btree"
)

const btreeDegree = 32

// Listener observes every appended event. Listeners run under the append lock
// in sequence order and must not block or append to the same log.
type Listener func(Event)

type Log struct {
	mu        sync.RWMutex
	seq       uint64
	events    *btree.BTreeG[Event]
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
}

func New(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{
		events: btree.NewG(btreeDegree, func(a, b Event) bool {
			return a.Seq < b.Seq
		}),
		listeners: make(map[int]Listener),
		now:       now,
	}
}

// Append assigns the next sequence number to ev and stores it.
func (l *Log) Append(ev Event) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	ev.Seq = l.seq
	if ev.At.IsZero() {
		ev.At = l.now()
	}
	if ev.News != nil && ev.News.Timestamp.IsZero() {
		n := *ev.News
		n.Timestamp = ev.At
		ev.News = &n
	}
	l.events.ReplaceOrInsert(ev)

	for _, fn := range l.listeners {
		fn(ev)
	}
	return ev.Seq
}

// ReadSince returns every event with Seq > cursor in order, plus the cursor
// to pass next time. A cursor past the high-water mark is clamped to it.
func (l *Log) ReadSince(cursor uint64) ([]Event, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cursor >= l.seq {
		return nil, l.seq
	}
	out := make([]Event, 0, l.seq-cursor)
	l.events.AscendGreaterOrEqual(Event{Seq: cursor + 1}, func(ev Event) bool {
		out = append(out, ev)
		return true
	})
	return out, l.seq
}

// HighWater is the sequence number of the latest event, 0 when empty.
func (l *Log) HighWater() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events.Len()
}

// Subscribe registers fn for future appends and returns its cancel func.
func (l *Log) Subscribe(fn Listener) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}
