// Package inhibitor tracks (site, check) pairs a scheduler worker has
// claimed, so overlapping ticks within one process do not double-fire a
// probe. It is purely an in-process optimisation; the store's staleness
// timestamps remain the source of truth across processes.
package inhibitor

import (
	"sync"
	"time"
)

type delay struct {
	infinite bool
	until    time.Time
}

// Key identifies one scheduled probe slot.
type Key struct {
	Site      string
	CheckUUID string
}

// Inhibitor is a mutex-guarded map of claimed probe slots.
type Inhibitor struct {
	mu   sync.Mutex
	held map[Key]delay
}

func New() *Inhibitor {
	return &Inhibitor{held: make(map[Key]delay)}
}

// Inhibit claims k until Release is called.
func (i *Inhibitor) Inhibit(k Key) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.held[k] = delay{infinite: true}
}

// InhibitFor claims k until d has elapsed.
func (i *Inhibitor) InhibitFor(k Key, d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.held[k] = delay{until: time.Now().Add(d)}
}

// Release frees k immediately.
func (i *Inhibitor) Release(k Key) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.held, k)
}

// Inhibited reports whether k is currently claimed, expiring stale
// deadline entries as a side effect.
func (i *Inhibitor) Inhibited(k Key) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	d, ok := i.held[k]
	if !ok {
		return false
	}
	if d.infinite {
		return true
	}
	if time.Now().After(d.until) {
		delete(i.held, k)
		return false
	}
	return true
}
