package dedup

import (
	"fmt"
	"slices"
	"sync"
)

// Locks serializes deduplication per course unit.
type Locks struct {
	mu    sync.Mutex
	units map[string]*sync.Mutex
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{units: make(map[string]*sync.Mutex)}
}

// Key names the lock of one unit of a course. A nil unit names the bucket
// of questions whose unit is unknown.
func Key(courseCode string, unitID *int64) string {
	if unitID == nil {
		return courseCode + "/-"
	}
	return fmt.Sprintf("%s/%d", courseCode, *unitID)
}

// Lock acquires every named lock in sorted order and returns a function
// that releases them.
func (l *Locks) Lock(keys ...string) (unlock func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*sync.Mutex, len(keys))
	for i, k := range keys {
		m := l.get(k)
		m.Lock()
		held[i] = m
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (l *Locks) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.units[key]
	if !ok {
		m = &sync.Mutex{}
		l.units[key] = m
	}
	return m
}
