package rules

import (
	"fmt"
	"sort"
	"sync"
)

// Lifetime decides when a watcher's tally is cleared.
type Lifetime int

const (
	// LifetimeMatch keeps the tally for the whole match.
	LifetimeMatch Lifetime = iota
	// LifetimeTurn clears the tally whenever a turn starts.
	LifetimeTurn
)

func (l Lifetime) String() string {
	switch l {
	case LifetimeMatch:
		return "MATCH"
	case LifetimeTurn:
		return "TURN"
	default:
		return "UNKNOWN"
	}
}

// Watcher derives statistics from the event stream. Watchers never mutate
// game state.
type Watcher interface {
	Watch(event Event)
	Reset()
	Key() string
	Lifetime() Lifetime
	// Observed reports whether anything was tallied since the last reset.
	Observed() bool
	Copy() Watcher
}

// Tally carries the key, lifetime and observed flag shared by watchers.
type Tally struct {
	key      string
	lifetime Lifetime
	observed bool
}

func NewTally(key string, lifetime Lifetime) Tally {
	return Tally{key: key, lifetime: lifetime}
}

func (t *Tally) Key() string        { return t.key }
func (t *Tally) Lifetime() Lifetime { return t.lifetime }
func (t *Tally) Observed() bool     { return t.observed }
func (t *Tally) MarkObserved()      { t.observed = true }
func (t *Tally) Reset()             { t.observed = false }

// WatcherRegistry holds a match's watchers keyed by Key. Watchers are
// notified in key order so replays tally identically.
type WatcherRegistry struct {
	mu       sync.RWMutex
	watchers map[string]Watcher
}

func NewWatcherRegistry() *WatcherRegistry {
	return &WatcherRegistry{watchers: make(map[string]Watcher)}
}

// Add registers w, replacing any watcher with the same key.
func (r *WatcherRegistry) Add(w Watcher) error {
	if w == nil {
		return fmt.Errorf("nil watcher")
	}
	if w.Key() == "" {
		return fmt.Errorf("watcher %T has no key", w)
	}
	r.mu.Lock()
	r.watchers[w.Key()] = w
	r.mu.Unlock()
	return nil
}

// Remove drops the watcher under key and reports whether one was registered.
func (r *WatcherRegistry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.watchers[key]
	delete(r.watchers, key)
	return ok
}

// Lookup returns the watcher under key, or nil.
func (r *WatcherRegistry) Lookup(key string) Watcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.watchers[key]
}

// Keys lists the registered keys in notification order.
func (r *WatcherRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keysLocked()
}

func (r *WatcherRegistry) keysLocked() []string {
	keys := make([]string, 0, len(r.watchers))
	for k := range r.watchers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a registry of independent watcher copies.
func (r *WatcherRegistry) Clone() *WatcherRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewWatcherRegistry()
	for k, w := range r.watchers {
		c.watchers[k] = w.Copy()
	}
	return c
}

// Notify delivers event to every watcher. A TurnStarted event first clears
// the turn-lifetime watchers so they only see the new turn.
func (r *WatcherRegistry) Notify(event Event) {
	r.mu.RLock()
	ordered := make([]Watcher, 0, len(r.watchers))
	for _, k := range r.keysLocked() {
		ordered = append(ordered, r.watchers[k])
	}
	r.mu.RUnlock()

	if event.Type == EventTurnStarted {
		for _, w := range ordered {
			if w.Lifetime() == LifetimeTurn {
				w.Reset()
			}
		}
	}
	for _, w := range ordered {
		w.Watch(event)
	}
}

// Attach subscribes the registry to every event on bus and returns the handle.
func (r *WatcherRegistry) Attach(bus *EventBus) int {
	return bus.Subscribe(r.Notify)
}
